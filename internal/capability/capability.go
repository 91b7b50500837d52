// Package capability defines the adapter contract for the external
// domains the agent can invoke (mail, calendar, drive, web search) and
// the sentinel result conventions adapters use to signal non-default
// outcomes through item titles.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Sentinel title conventions. These are part of the adapter wire
// contract: the step result classifier keys on them, so adapters must
// emit exactly these strings.
const (
	TitleConfirmationRequired     = "Confirmation required"
	TitleSendConfirmationRequired = "Send confirmation required"
	PrefixCreated                 = "[Created] "
	PrefixSent                    = "[Sent] "
	PrefixDrafted                 = "[Drafted] "
)

// ErrNotConnected signals a missing or unusable credential. The
// pipeline turns it into a capability-specific reconnect message
// without invoking the provider.
var ErrNotConnected = errors.New("capability: account not connected")

// Item is one row of an adapter result.
type Item struct {
	Title   string
	URL     string
	Snippet string
}

// Result is an adapter's raw outcome. Meta carries adapter-specific
// flags such as whether the access token was refreshed mid-call.
type Result struct {
	Query string
	Items []Item
	Meta  map[string]string
}

// Request carries everything an adapter needs for one invocation.
type Request struct {
	ThreadID    string
	UserText    string
	Query       string
	Operation   string
	Args        map[string]string
	AccessToken string
}

// Arg returns a request argument, falling back to the given default.
func (r Request) Arg(key, fallback string) string {
	if v, ok := r.Args[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// Adapter converts one request into provider API calls.
type Adapter interface {
	Name() string
	Run(ctx context.Context, req Request) (Result, error)
}

// Definition pairs an adapter with its registry metadata.
type Definition struct {
	Adapter     Adapter
	Label       string
	Description string
	Operations  []string
}

// Registry is the set of registered capability adapters.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := def.Adapter.Name()
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("capability %q already registered", name)
	}
	r.defs[name] = def
	return nil
}

func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RenderForPrompt renders the registry as a planner prompt section.
func (r *Registry) RenderForPrompt() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Registered tools:\n")
	for _, name := range names {
		def := r.defs[name]
		sb.WriteString(fmt.Sprintf("- %s (%s): %s", name, def.Label, def.Description))
		if len(def.Operations) > 0 {
			sb.WriteString(" Operations: " + strings.Join(def.Operations, ", ") + ".")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
