package capture

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// ErrTimeout is returned by a Source read that saw no packet within its read
// timeout. The caller may read again.
var ErrTimeout = errors.New("capture: read timeout")

// Source is an open live capture handle.
type Source interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
	Close() error
}

// SourceConfig holds backend-independent open options.
type SourceConfig struct {
	Interface   string // empty selects the first suitable interface
	SnapLen     int
	Promiscuous bool
	ReadTimeout time.Duration
}

// Opener opens a Source.
type Opener func(cfg SourceConfig) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Opener{}
)

// Register adds a capture backend under the given name. Backends register
// themselves from init.
func Register(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = open
}

// Lookup returns the opener for the given backend name.
func Lookup(name string) (Opener, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	open, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown capture backend: %s", name)
	}
	return open, nil
}

// Backends returns the names of all registered backends, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
