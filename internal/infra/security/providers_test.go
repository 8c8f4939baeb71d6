package security

import (
	"context"
	"testing"
	"time"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

type stubUserRepo struct {
	byEmail map[string]domain.User
}

func (s *stubUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	return user, nil
}

func (s *stubUserRepo) GetByID(ctx context.Context, id int) (*domain.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := u
	return &copied, nil
}

func (s *stubUserRepo) SetActive(ctx context.Context, id int, active bool) error { return nil }

func (s *stubUserRepo) RecordLogin(ctx context.Context, id int, provider string, at time.Time) error {
	return nil
}

type stubCredentialRepo struct {
	hashes map[int]string
}

func (s *stubCredentialRepo) GetPasswordHash(ctx context.Context, userID int) (string, error) {
	hash, ok := s.hashes[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return hash, nil
}

func (s *stubCredentialRepo) SetPassword(ctx context.Context, userID int, hash string, at time.Time) error {
	s.hashes[userID] = hash
	return nil
}

func (s *stubCredentialRepo) CreateVerification(ctx context.Context, userID int, tokenHash string, expiresAt time.Time) error {
	return nil
}

func TestDatabaseProviderSuccess(t *testing.T) {
	hash, err := HashPassword("s3cret-passphrase")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	users := &stubUserRepo{byEmail: map[string]domain.User{
		"analyst@example.org": {ID: 7, Email: "analyst@example.org", Active: true},
	}}
	creds := &stubCredentialRepo{hashes: map[int]string{7: hash}}

	provider := NewDatabaseProvider(users, creds, nil)

	resp := provider.AuthenticateForm(context.Background(), "Analyst@Example.org", "s3cret-passphrase")
	if !resp.Succeeded() {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Email != "analyst@example.org" {
		t.Fatalf("expected normalized email, got %q", resp.Email)
	}
}

func TestDatabaseProviderFailures(t *testing.T) {
	hash, err := HashPassword("s3cret-passphrase")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	users := &stubUserRepo{byEmail: map[string]domain.User{
		"analyst@example.org":   {ID: 7, Email: "analyst@example.org", Active: true},
		"federated@example.org": {ID: 8, Email: "federated@example.org", Active: true},
	}}
	creds := &stubCredentialRepo{hashes: map[int]string{7: hash}}

	provider := NewDatabaseProvider(users, creds, nil)
	ctx := context.Background()

	cases := []struct {
		name       string
		identifier string
		password   string
		want       domain.FailureReason
	}{
		{"wrong password", "analyst@example.org", "nope", domain.FailureBadCredentials},
		{"unknown user", "stranger@example.org", "whatever", domain.FailureUserUnknown},
		{"malformed identifier", "not an email", "whatever", domain.FailureBadCredentials},
		{"no stored credential", "federated@example.org", "whatever", domain.FailureNotApplicable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := provider.AuthenticateForm(ctx, tc.identifier, tc.password)
			if resp.Succeeded() {
				t.Fatalf("expected failure, got success")
			}
			if resp.Failure != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, resp.Failure)
			}
		})
	}
}

func TestHeaderProvider(t *testing.T) {
	provider := NewHeaderProvider("X-Remote-User", nil)
	ctx := context.Background()

	resp := provider.AuthenticateRequest(ctx, &domain.RequestContext{
		Headers: map[string]string{"X-Remote-User": "PI@Lab.Example.org"},
	})
	if !resp.Succeeded() {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Email != "pi@lab.example.org" {
		t.Fatalf("expected normalized email, got %q", resp.Email)
	}

	resp = provider.AuthenticateRequest(ctx, &domain.RequestContext{})
	if resp.Failure != domain.FailureNotApplicable {
		t.Fatalf("expected not-applicable for absent header, got %+v", resp)
	}

	resp = provider.AuthenticateRequest(ctx, &domain.RequestContext{
		Headers: map[string]string{"X-Remote-User": "garbage value"},
	})
	if resp.Failure != domain.FailureConfiguration {
		t.Fatalf("expected configuration failure for malformed header, got %+v", resp)
	}
}
