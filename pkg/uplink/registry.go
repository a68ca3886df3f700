package uplink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/levenlabs/go-lflag"
)

// Registry holds the configured uplink connections by name and resolves
// which one owns a given system identifier.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// connectionConfig is the flag-supplied configuration for one connection.
type connectionConfig struct {
	ClientID     string `json:"clientID"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
	// Systems pins the system set instead of discovering it from the API.
	Systems []int `json:"systems,omitempty"`
}

// Configured sets up the registry from the -uplink-connections flag, a JSON
// map of connection name to credentials.
func Configured() *Registry {
	r := NewRegistry()

	connections := map[string]connectionConfig{}
	lflag.JSON(&connections, "uplink-connections", connections, "JSON map of connection name to uplink credentials (clientID, clientSecret, refreshToken, optional systems list)")

	lflag.Do(func() {
		for name, cfg := range connections {
			if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
				panic(fmt.Sprintf("uplink connection %q is missing credentials", name))
			}
			r.SetSession(name, NewClient(cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken, cfg.Systems))
		}
	})

	return r
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
	}
}

// SetSession registers or replaces the session for a connection name.
func (r *Registry) SetSession(name string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[name] = s
}

// Names returns the registered connection names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// System scans all registered connections for the one whose system set
// contains the given identifier. It fails when no connection owns the
// system.
func (r *Registry) System(ctx context.Context, system int) (Session, error) {
	r.mu.Lock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	sessions := make([]Session, len(names))
	for i, name := range names {
		sessions[i] = r.sessions[name]
	}
	r.mu.Unlock()

	var lastErr error
	for i, s := range sessions {
		ids, err := s.Systems(ctx)
		if err != nil {
			// a broken connection shouldn't hide the system on another one
			lastErr = fmt.Errorf("connection %q: %w", names[i], err)
			continue
		}
		for _, id := range ids {
			if id == system {
				return s, nil
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("can't find uplink connection with system identifier %d (%w)", system, lastErr)
	}
	return nil, fmt.Errorf("can't find uplink connection with system identifier %d", system)
}
