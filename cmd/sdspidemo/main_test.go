package main

import "testing"

func TestSampleBufferChecksum(t *testing.T) {
	buf := sampleBuffer()
	if len(buf) != 512 {
		t.Fatalf("buffer length = %d, want 512", len(buf))
	}
	if sum := checksum(buf); sum != 0x0569 {
		t.Errorf("checksum = 0x%04x, want 0x0569", sum)
	}
}
