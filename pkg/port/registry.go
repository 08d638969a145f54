// Package port is a name-to-constructor registry for sdspi.Port
// backends, so a board can be selected by a flag or config string
// instead of a build-time import.
//
// Grounded on pkg/can's RegisterInterface/NewBus pair: a package-level
// map populated by each backend's init(), looked up by name at runtime.
// sdspi has only one backend worth registering in-tree (internal/simbus,
// wired in pkg/port/simulated.go); real hardware backends register the
// same way from their own package's init().
package port

import (
	"fmt"

	"github.com/embedded-go/sdspi"
)

// NewFunc constructs a Port for channel, whose meaning is backend
// specific (a device path, a simulated card profile name, ...).
type NewFunc func(channel string) (sdspi.Port, error)

var registry = make(map[string]NewFunc)

// Register adds a backend under name. Call it from an init() function,
// the way pkg/can's plugins register themselves.
func Register(name string, newFunc NewFunc) {
	registry[name] = newFunc
}

// Implemented lists the backend names currently registered.
func Implemented() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Open constructs a Port using the backend registered under name.
func Open(name, channel string) (sdspi.Port, error) {
	newFunc, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("port: unregistered backend %q", name)
	}
	return newFunc(channel)
}
