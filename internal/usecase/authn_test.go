package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

type authEnv struct {
	*securityEnv
	registry *ProviderRegistry
	verifier *memVerificationSender
	auth     *AuthService
}

func newAuthEnv() *authEnv {
	base := newSecurityEnv()
	registry := NewProviderRegistry()
	verifier := &memVerificationSender{}
	auth := NewAuthService(registry, base.users, base.credentials, verifier, base.audit, base.events, nil)
	return &authEnv{securityEnv: base, registry: registry, verifier: verifier, auth: auth}
}

func TestAuthenticateFirstSuccessWins(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()
	env.users.put(domain.User{ID: 7, Email: "tech@lab.example.org", Active: true})

	failing := &scriptedForm{response: domain.AuthFailure("ldap", domain.FailureBadCredentials)}
	succeeding := &scriptedForm{response: domain.AuthSuccess("database", "tech@lab.example.org")}
	env.registry.Register(Provider{Name: "ldap", Form: failing})
	env.registry.Register(Provider{Name: "database", Form: succeeding})

	result, err := env.auth.Authenticate(ctx, "tech@lab.example.org", "secret", nil, true)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Status != domain.AuthSuccessStatus {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if result.Provider != "database" {
		t.Fatalf("expected the database provider to win, got %s", result.Provider)
	}
	if result.User == nil || result.User.ID != 7 {
		t.Fatalf("expected user 7, got %+v", result.User)
	}

	// An eventual success suppresses the earlier failure from the audit trail.
	if failed := env.audit.byType(domain.EventLoginFailed); len(failed) != 0 {
		t.Fatalf("expected no failure audit after success, got %d", len(failed))
	}
	if logins := env.audit.byType(domain.EventLogin); len(logins) != 1 {
		t.Fatalf("expected one login audit entry, got %d", len(logins))
	}
}

func TestAuthenticateRemembersFirstInterestingFailure(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	// A: configuration error (always audit-worthy). B: bad credentials
	// (audit-worthy only on request). Only A's failure is recorded.
	broken := &scriptedForm{response: domain.AuthFailure("ldap", domain.FailureConfiguration)}
	rejecting := &scriptedForm{response: domain.AuthFailure("database", domain.FailureBadCredentials)}
	env.registry.Register(Provider{Name: "ldap", Form: broken})
	env.registry.Register(Provider{Name: "database", Form: rejecting})

	result, err := env.auth.Authenticate(ctx, "tech@lab.example.org", "wrong", nil, true)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Status != domain.AuthBadCredentials {
		t.Fatalf("expected bad credentials, got %s", result.Status)
	}

	failed := env.audit.byType(domain.EventLoginFailed)
	if len(failed) != 1 {
		t.Fatalf("expected exactly one failure audit entry, got %d", len(failed))
	}
	if !strings.Contains(failed[0].Message, "ldap") || !strings.Contains(failed[0].Message, string(domain.FailureConfiguration)) {
		t.Fatalf("expected the entry to name the first interesting failure, got %q", failed[0].Message)
	}
}

func TestAuthenticateFailureLoggingSuppressed(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	rejecting := &scriptedForm{response: domain.AuthFailure("database", domain.FailureBadCredentials)}
	env.registry.Register(Provider{Name: "database", Form: rejecting})

	// logFailures=false downgrades onFailure reasons to silence.
	result, err := env.auth.Authenticate(ctx, "tech@lab.example.org", "wrong", nil, false)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Status != domain.AuthBadCredentials {
		t.Fatalf("expected bad credentials, got %s", result.Status)
	}
	if failed := env.audit.byType(domain.EventLoginFailed); len(failed) != 0 {
		t.Fatalf("expected no failure audit, got %d", len(failed))
	}
}

func TestAuthenticateNotApplicableNeverAudited(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	passing := &scriptedForm{response: domain.AuthFailure("sso", domain.FailureNotApplicable)}
	env.registry.Register(Provider{Name: "sso", Form: passing})

	if _, err := env.auth.Authenticate(ctx, "tech@lab.example.org", "pw", nil, true); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if failed := env.audit.byType(domain.EventLoginFailed); len(failed) != 0 {
		t.Fatalf("expected no audit for not-applicable, got %d", len(failed))
	}
}

func TestAuthenticateRedirectAborts(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	redirecting := &scriptedForm{response: domain.AuthRedirect("cas", "https://sso.example.org/login")}
	trailing := &scriptedForm{response: domain.AuthSuccess("database", "tech@lab.example.org")}
	env.registry.Register(Provider{Name: "cas", Form: redirecting})
	env.registry.Register(Provider{Name: "database", Form: trailing})

	_, err := env.auth.Authenticate(ctx, "tech@lab.example.org", "pw", nil, true)

	var redirect *RedirectError
	if !errors.As(err, &redirect) {
		t.Fatalf("expected RedirectError, got %v", err)
	}
	if redirect.URL != "https://sso.example.org/login" || redirect.Provider != "cas" {
		t.Fatalf("unexpected redirect: %+v", redirect)
	}
	if trailing.calls != 0 {
		t.Fatal("redirect must abort the loop before later providers run")
	}
}

func TestAuthenticateSkipsProvidersWithoutInput(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	form := &scriptedForm{response: domain.AuthSuccess("database", "tech@lab.example.org")}
	env.registry.Register(Provider{Name: "database", Form: form})

	// Blank credentials and no request context: no provider is eligible.
	result, err := env.auth.Authenticate(ctx, "", "", nil, true)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Status != domain.AuthBadCredentials {
		t.Fatalf("expected bad credentials, got %s", result.Status)
	}
	if form.calls != 0 {
		t.Fatal("form provider must not run without credentials")
	}
}

func TestAuthenticateRequestProvider(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()
	env.users.put(domain.User{ID: 7, Email: "tech@lab.example.org", Active: true})

	header := &scriptedRequest{response: domain.AuthSuccess("sso-header", "tech@lab.example.org")}
	env.registry.Register(Provider{Name: "sso-header", Request: header})

	rctx := &domain.RequestContext{
		Headers:    map[string]string{"X-Remote-User": "tech@lab.example.org"},
		RemoteAddr: "10.1.2.3",
		UserAgent:  "integration-test",
	}

	result, err := env.auth.Authenticate(ctx, "", "", rctx, true)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Status != domain.AuthSuccessStatus {
		t.Fatalf("expected success, got %s", result.Status)
	}
}

func TestAuthenticateProvisionsUnknownIdentity(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	sso := &scriptedForm{response: domain.AuthSuccess("sso", "New.Hire@lab.example.org")}
	env.registry.Register(Provider{Name: "sso", Form: sso})

	result, err := env.auth.Authenticate(ctx, "new.hire@lab.example.org", "pw", nil, true)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Status != domain.AuthSuccessStatus {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if result.User == nil || result.User.Email != "new.hire@lab.example.org" {
		t.Fatalf("expected provisioned user with normalized email, got %+v", result.User)
	}

	// The account exists, holds a hashed verification token, and the token
	// went out.
	if _, err := env.users.GetByEmail(ctx, "new.hire@lab.example.org"); err != nil {
		t.Fatalf("expected provisioned user in storage: %v", err)
	}
	if len(env.credentials.verifications) != 1 {
		t.Fatalf("expected one verification token, got %d", len(env.credentials.verifications))
	}
	if len(env.verifier.sent) != 1 {
		t.Fatalf("expected one verification mail, got %d", len(env.verifier.sent))
	}
	if len(env.events.userProvisiond) != 1 {
		t.Fatalf("expected one provisioned event, got %d", len(env.events.userProvisiond))
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()
	env.users.put(domain.User{ID: 7, Email: "tech@lab.example.org", Active: false})

	form := &scriptedForm{response: domain.AuthSuccess("database", "tech@lab.example.org")}
	env.registry.Register(Provider{Name: "database", Form: form})

	result, err := env.auth.Authenticate(ctx, "tech@lab.example.org", "pw", nil, true)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.Status != domain.AuthInactiveAccount {
		t.Fatalf("expected inactive account, got %s", result.Status)
	}
	if failed := env.audit.byType(domain.EventLoginFailed); len(failed) != 1 {
		t.Fatalf("expected one failure audit entry, got %d", len(failed))
	}
}

func TestLogoutInvokesProviderHook(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	hook := &scriptedLogout{}
	env.registry.Register(Provider{Name: "cas", Logout: hook})

	provider := "cas"
	user := domain.User{ID: 7, Email: "tech@lab.example.org", Active: true, LastProvider: &provider}

	if err := env.auth.Logout(ctx, user); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if hook.called != 1 {
		t.Fatalf("expected one logout hook call, got %d", hook.called)
	}
	if logouts := env.audit.byType(domain.EventLogout); len(logouts) != 1 {
		t.Fatalf("expected one logout audit entry, got %d", len(logouts))
	}
}

func TestProviderRegistryOrdering(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register(Provider{Name: "database"})
	registry.Register(Provider{Name: "ldap"})
	registry.RegisterFront(Provider{Name: "sso-header"})

	active := registry.Active()
	if len(active) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(active))
	}
	if active[0].Name != "sso-header" || active[1].Name != "database" || active[2].Name != "ldap" {
		t.Fatalf("unexpected order: %s, %s, %s", active[0].Name, active[1].Name, active[2].Name)
	}

	// Re-registering replaces in place, preserving position.
	registry.Register(Provider{Name: "database", Form: &scriptedForm{}})
	active = registry.Active()
	if len(active) != 3 || active[1].Name != "database" || active[1].Form == nil {
		t.Fatalf("expected in-place replacement, got %+v", active)
	}

	registry.Deactivate("ldap")
	active = registry.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 providers after deactivation, got %d", len(active))
	}
	if _, ok := registry.Find("ldap"); ok {
		t.Fatal("deactivated provider must not be findable")
	}
}
