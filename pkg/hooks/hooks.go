// Package hooks runs user executables after artifact lifecycle events.
// A hook is any executable in a hook directory that prints its event type
// when called with "hook" and accepts a JSON payload on stdin when called
// with "run". Hook failures are logged and never abort the operation that
// triggered them.
package hooks

import (
	"time"
)

// HookType is the lifecycle event a hook subscribes to
type HookType string

const (
	HookTypeAfterCreate HookType = "after_create"
	HookTypeAfterUpdate HookType = "after_update"
	HookTypeAfterDelete HookType = "after_delete"
	HookTypeAfterSync   HookType = "after_sync"
)

// HookTypes lists every supported event
var HookTypes = []HookType{HookTypeAfterCreate, HookTypeAfterUpdate, HookTypeAfterDelete, HookTypeAfterSync}

// DefaultTimeout bounds a single hook execution
const DefaultTimeout = 30 * time.Second

// Hook is a discovered hook executable
type Hook struct {
	Name     string
	Path     string
	HookType HookType
}

// Manager holds discovered hooks grouped by type
type Manager struct {
	hooks   map[HookType][]*Hook
	timeout time.Duration
}

// NewManager discovers hooks and returns a Manager for them
func NewManager(opts ...DiscoveryOption) (*Manager, error) {
	discovery, err := NewDiscovery(opts...)
	if err != nil {
		return nil, err
	}

	hooks, err := discovery.DiscoverHooks()
	if err != nil {
		return nil, err
	}

	return &Manager{hooks: hooks, timeout: DefaultTimeout}, nil
}

// SetTimeout changes the per-hook execution timeout
func (m *Manager) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		m.timeout = timeout
	}
}

// HasHooks reports whether any hook is registered for hookType
func (m *Manager) HasHooks(hookType HookType) bool {
	return m != nil && len(m.hooks[hookType]) > 0
}

// Hooks returns the hooks registered for hookType
func (m *Manager) Hooks(hookType HookType) []*Hook {
	if m == nil {
		return nil
	}
	return m.hooks[hookType]
}
