// Package codec centralizes encoding of the store's meta records.
//
// Persisted meta files record the name of the codec that wrote them, so a
// store opened later selects the matching codec by name. Changing the default
// never breaks existing files as long as the old codec stays registered.
package codec

import (
	"fmt"
	"sync"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Codec{}
)

// Register makes a custom codec resolvable by ByName.
//
// Built-in names cannot be replaced.
func Register(c Codec) error {
	if c == nil || c.Name() == "" {
		return fmt.Errorf("codec: invalid codec")
	}
	if _, ok := builtin(c.Name()); ok {
		return fmt.Errorf("codec: %q is a built-in codec", c.Name())
	}
	if len(c.Name()) > 255 {
		return fmt.Errorf("codec: name %q too long", c.Name())
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.Name()] = c
	return nil
}

// ByName returns a codec by its stable name.
//
// This is used for self-describing persistence formats that store the codec
// name in their header.
func ByName(name string) (Codec, bool) {
	if c, ok := builtin(name); ok {
		return c, true
	}

	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

func builtin(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
