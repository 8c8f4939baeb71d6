package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

// FormAuthenticator validates an (identifier, password) credential pair.
type FormAuthenticator interface {
	AuthenticateForm(ctx context.Context, identifier, password string) domain.AuthenticationResponse
}

// RequestAuthenticator validates request-carried credentials (SSO headers,
// client certificates).
type RequestAuthenticator interface {
	AuthenticateRequest(ctx context.Context, rctx *domain.RequestContext) domain.AuthenticationResponse
}

// LogoutHandler is the optional provider-specific cleanup hook invoked when
// a user who last authenticated through the provider logs out.
type LogoutHandler interface {
	OnLogout(ctx context.Context, user domain.User) error
}

// Provider is one authentication backend. Capabilities are the non-nil
// fields: a provider may answer form credentials, request context, or both.
// The dispatcher skips capabilities a provider does not carry; there is no
// open-ended provider hierarchy beyond this.
type Provider struct {
	Name    string
	Form    FormAuthenticator
	Request RequestAuthenticator
	Logout  LogoutHandler
}

// ProviderRegistry holds the ordered list of active providers. The list is
// read on every authentication attempt and written only when an admin
// enables or disables a provider, so reads go through an atomic pointer to
// an immutable slice; writers copy, swap, and never block readers.
type ProviderRegistry struct {
	writeMu sync.Mutex
	active  atomic.Pointer[[]Provider]
}

// NewProviderRegistry returns an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	r := &ProviderRegistry{}
	empty := make([]Provider, 0)
	r.active.Store(&empty)
	return r
}

// Active returns the current provider list in dispatch order. The returned
// slice is immutable; callers must not modify it.
func (r *ProviderRegistry) Active() []Provider {
	return *r.active.Load()
}

// Register appends the provider to the end of the dispatch order, replacing
// any active provider with the same name in place.
func (r *ProviderRegistry) Register(p Provider) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.active.Load()
	next := make([]Provider, 0, len(current)+1)
	replaced := false
	for _, existing := range current {
		if existing.Name == p.Name {
			next = append(next, p)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, p)
	}
	r.active.Store(&next)
}

// RegisterFront inserts a high-priority provider at the front of the
// dispatch order, removing any active provider with the same name first.
func (r *ProviderRegistry) RegisterFront(p Provider) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.active.Load()
	next := make([]Provider, 0, len(current)+1)
	next = append(next, p)
	for _, existing := range current {
		if existing.Name == p.Name {
			continue
		}
		next = append(next, existing)
	}
	r.active.Store(&next)
}

// Deactivate removes the named provider from the dispatch order. Removing an
// unknown name is a no-op.
func (r *ProviderRegistry) Deactivate(name string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.active.Load()
	next := make([]Provider, 0, len(current))
	for _, existing := range current {
		if existing.Name == name {
			continue
		}
		next = append(next, existing)
	}
	r.active.Store(&next)
}

// Find returns the active provider with the given name.
func (r *ProviderRegistry) Find(name string) (Provider, bool) {
	for _, p := range r.Active() {
		if p.Name == name {
			return p, true
		}
	}
	return Provider{}, false
}
