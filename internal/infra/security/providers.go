package security

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

// Provider names as recorded on the user row at login.
const (
	DatabaseProviderName = "database"
	HeaderProviderName   = "sso-header"
)

// DatabaseProvider authenticates form credentials against Argon2id hashes in
// the credential store. It is the baseline provider and is normally
// registered last so SSO providers get the first look.
type DatabaseProvider struct {
	users       port.UserRepository
	credentials port.CredentialRepository
	logger      *zap.Logger
}

// NewDatabaseProvider constructs a DatabaseProvider.
func NewDatabaseProvider(users port.UserRepository, credentials port.CredentialRepository, logger *zap.Logger) *DatabaseProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabaseProvider{users: users, credentials: credentials, logger: logger}
}

// AuthenticateForm validates the (identifier, password) pair. Accounts
// without a stored credential (federated identities) are not applicable to
// this provider rather than failed.
func (p *DatabaseProvider) AuthenticateForm(ctx context.Context, identifier, password string) domain.AuthenticationResponse {
	addr, err := mail.ParseAddress(strings.TrimSpace(identifier))
	if err != nil {
		return domain.AuthFailure(DatabaseProviderName, domain.FailureBadCredentials)
	}
	email := strings.ToLower(addr.Address)

	user, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.AuthFailure(DatabaseProviderName, domain.FailureUserUnknown)
		}
		p.logger.Error("credential lookup failed", zap.Error(err))
		return domain.AuthFailure(DatabaseProviderName, domain.FailureConfiguration)
	}

	hash, err := p.credentials.GetPasswordHash(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.AuthFailure(DatabaseProviderName, domain.FailureNotApplicable)
		}
		p.logger.Error("password hash lookup failed", zap.Error(err))
		return domain.AuthFailure(DatabaseProviderName, domain.FailureConfiguration)
	}

	ok, err := VerifyPassword(password, hash)
	if err != nil {
		p.logger.Error("password verification failed", zap.Error(err))
		return domain.AuthFailure(DatabaseProviderName, domain.FailureConfiguration)
	}
	if !ok {
		return domain.AuthFailure(DatabaseProviderName, domain.FailureBadCredentials)
	}

	return domain.AuthSuccess(DatabaseProviderName, user.Email)
}

// HeaderProvider trusts an identity header injected by an authenticating
// reverse proxy. It is request-based: it never sees form credentials.
type HeaderProvider struct {
	header string
	logger *zap.Logger
}

// NewHeaderProvider constructs a HeaderProvider reading the given header.
func NewHeaderProvider(header string, logger *zap.Logger) *HeaderProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeaderProvider{header: header, logger: logger}
}

// AuthenticateRequest reads the trusted header. An absent header means the
// proxy did not authenticate the request and the provider simply does not
// apply; a malformed address in the header is a proxy misconfiguration and
// is always audit-worthy.
func (p *HeaderProvider) AuthenticateRequest(ctx context.Context, rctx *domain.RequestContext) domain.AuthenticationResponse {
	raw := strings.TrimSpace(rctx.Header(p.header))
	if raw == "" {
		return domain.AuthFailure(HeaderProviderName, domain.FailureNotApplicable)
	}

	addr, err := mail.ParseAddress(raw)
	if err != nil {
		p.logger.Warn("sso header carried malformed address", zap.String("header", p.header))
		return domain.AuthFailure(HeaderProviderName, domain.FailureConfiguration)
	}

	return domain.AuthSuccess(HeaderProviderName, strings.ToLower(addr.Address))
}
