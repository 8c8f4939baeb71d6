package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/infra/logger"
	"github.com/arklim/biomed-platform-security/internal/infra/security"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

const verificationTokenTTL = 72 * time.Hour

// RedirectError aborts the provider loop and hands the attempt off to an
// external identity provider. It propagates to the caller as an error so the
// transport layer can issue the redirect; it is not an authentication
// failure.
type RedirectError struct {
	Provider string
	URL      string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("authentication redirect to %s requested by provider %s", e.URL, e.Provider)
}

// rememberedFailure is the first audit-worthy failure seen across the
// provider loop.
type rememberedFailure struct {
	provider string
	email    string
	reason   domain.FailureReason
}

// AuthService dispatches authentication attempts across the ordered active
// provider list and owns login/logout audit.
type AuthService struct {
	providers   *ProviderRegistry
	users       port.UserRepository
	credentials port.CredentialRepository
	verifier    port.VerificationSender
	audit       port.AuditLogger
	events      port.EventPublisher
	logger      *zap.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	providers *ProviderRegistry,
	users port.UserRepository,
	credentials port.CredentialRepository,
	verifier port.VerificationSender,
	audit port.AuditLogger,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		providers:   providers,
		users:       users,
		credentials: credentials,
		verifier:    verifier,
		audit:       audit,
		events:      events,
		logger:      log,
	}
}

// Authenticate runs the provider loop: form-capable providers see non-blank
// credentials, request-capable providers see the request context, and the
// first success wins. Individual failures never stop the loop; only the
// first audit-worthy one is remembered, and it is written to the audit trail
// only when the whole loop fails. A provider demanding a redirect aborts the
// loop immediately via *RedirectError.
//
// The caller receives BadCredentials for every non-success cause except a
// deactivated account; the detailed failure reason exists only in the audit
// trail.
func (s *AuthService) Authenticate(ctx context.Context, identifier, password string, rctx *domain.RequestContext, logFailures bool) (domain.AuthenticationResult, error) {
	var remembered *rememberedFailure

	for _, p := range s.providers.Active() {
		var resp domain.AuthenticationResponse
		switch {
		case p.Form != nil && identifier != "" && password != "":
			resp = p.Form.AuthenticateForm(ctx, identifier, password)
		case p.Request != nil && rctx != nil:
			resp = p.Request.AuthenticateRequest(ctx, rctx)
		default:
			continue
		}

		if resp.Redirect != "" {
			return domain.AuthenticationResult{}, &RedirectError{Provider: p.Name, URL: resp.Redirect}
		}

		if resp.Succeeded() {
			return s.finishSuccess(ctx, p.Name, resp.Email, rctx)
		}

		if remembered == nil {
			switch resp.Failure.Report() {
			case domain.ReportAlways:
				remembered = &rememberedFailure{provider: p.Name, email: identifier, reason: resp.Failure}
			case domain.ReportOnFailure:
				if logFailures {
					remembered = &rememberedFailure{provider: p.Name, email: identifier, reason: resp.Failure}
				}
			}
		}
	}

	if remembered != nil {
		s.auditFailure(ctx, remembered, rctx)
	}

	return domain.AuthenticationResult{Status: domain.AuthBadCredentials}, nil
}

// finishSuccess resolves the validated email to a user, provisioning one
// just-in-time when the identity is authenticated but unknown, and rejects
// deactivated accounts.
func (s *AuthService) finishSuccess(ctx context.Context, provider, email string, rctx *domain.RequestContext) (domain.AuthenticationResult, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		// The provider vouched for a syntactically broken address; treat it
		// as a configuration problem, not a user error.
		s.auditFailure(ctx, &rememberedFailure{provider: provider, email: email, reason: domain.FailureConfiguration}, rctx)
		return domain.AuthenticationResult{Status: domain.AuthBadCredentials}, nil
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.AuthenticationResult{}, fmt.Errorf("resolve authenticated user: %w", err)
		}
		provisioned, perr := s.provision(ctx, provider, normalized)
		if perr != nil {
			return domain.AuthenticationResult{}, perr
		}
		user = &provisioned
	}

	if !user.Active {
		s.recordAudit(ctx, domain.AuditEvent{
			EventType:  domain.EventLoginFailed,
			ActorID:    user.ID,
			ActorEmail: logger.MaskEmail(user.Email),
			Message:    fmt.Sprintf("login rejected for deactivated account via %s", provider),
		})
		return domain.AuthenticationResult{Status: domain.AuthInactiveAccount}, nil
	}

	now := time.Now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, provider, now); err != nil {
		s.logger.Warn("record login failed", zap.Int("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLogin = &now
		user.LastProvider = &provider
	}

	s.recordAudit(ctx, domain.AuditEvent{
		EventType:  domain.EventLogin,
		ActorID:    user.ID,
		ActorEmail: logger.MaskEmail(user.Email),
		Message:    fmt.Sprintf("login via %s", provider),
		Metadata:   requestMetadata(rctx),
	})

	return domain.AuthenticationResult{
		Status:   domain.AuthSuccessStatus,
		User:     user,
		Provider: provider,
	}, nil
}

// provision creates a user record for an authenticated-but-unknown identity
// and hands a verification token to the notification sender. Token delivery
// failures are logged, not fatal: the account exists and the token can be
// re-issued.
func (s *AuthService) provision(ctx context.Context, provider, email string) (domain.User, error) {
	user := domain.User{
		Email:       email,
		DisplayName: email,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a provisioning race; the other writer's row is ours to use.
			existing, gerr := s.users.GetByEmail(ctx, email)
			if gerr != nil {
				return domain.User{}, fmt.Errorf("resolve provisioned user: %w", gerr)
			}
			return *existing, nil
		}
		return domain.User{}, fmt.Errorf("provision user: %w", err)
	}

	rawToken, err := security.GenerateSecureToken(32)
	if err != nil {
		return domain.User{}, fmt.Errorf("generate verification token: %w", err)
	}
	expiresAt := time.Now().UTC().Add(verificationTokenTTL)
	if err := s.credentials.CreateVerification(ctx, created.ID, security.HashToken(rawToken), expiresAt); err != nil {
		return domain.User{}, fmt.Errorf("store verification token: %w", err)
	}
	if s.verifier != nil {
		if err := s.verifier.SendVerification(ctx, created.Email, rawToken); err != nil {
			s.logger.Warn("send verification failed",
				zap.Int("user_id", created.ID),
				zap.String("email", logger.MaskEmail(created.Email)),
				zap.Error(err),
			)
		}
	}

	if err := s.events.PublishUserProvisioned(ctx, domain.UserProvisionedEvent{
		EventID:       uuid.NewString(),
		UserID:        created.ID,
		Email:         created.Email,
		Provider:      provider,
		ProvisionedAt: created.CreatedAt,
	}); err != nil {
		s.logger.Warn("publish user provisioned failed", zap.Int("user_id", created.ID), zap.Error(err))
	}

	s.recordAudit(ctx, domain.AuditEvent{
		EventType:  domain.EventUserProvision,
		ActorID:    created.ID,
		ActorEmail: logger.MaskEmail(created.Email),
		Message:    fmt.Sprintf("user provisioned just-in-time via %s", provider),
	})

	return created, nil
}

// Logout invokes the cleanup hook of the provider recorded at the user's
// last login. No recorded provider, or a provider without a hook, is a
// no-op.
func (s *AuthService) Logout(ctx context.Context, user domain.User) error {
	if user.LastProvider != nil {
		if p, ok := s.providers.Find(*user.LastProvider); ok && p.Logout != nil {
			if err := p.Logout.OnLogout(ctx, user); err != nil {
				s.logger.Warn("provider logout hook failed",
					zap.String("provider", p.Name),
					zap.Int("user_id", user.ID),
					zap.Error(err),
				)
			}
		}
	}

	s.recordAudit(ctx, domain.AuditEvent{
		EventType:  domain.EventLogout,
		ActorID:    user.ID,
		ActorEmail: logger.MaskEmail(user.Email),
		Message:    "logout",
	})

	return nil
}

// auditFailure writes the remembered failure, attributed to a matching user
// when the identifier resolves, else to the guest identity.
func (s *AuthService) auditFailure(ctx context.Context, failure *rememberedFailure, rctx *domain.RequestContext) {
	actorID := domain.GuestUserID
	actorEmail := ""

	if normalized, err := NormalizeEmail(failure.email); err == nil {
		if user, err := s.users.GetByEmail(ctx, normalized); err == nil {
			actorID = user.ID
			actorEmail = logger.MaskEmail(user.Email)
		} else {
			actorEmail = logger.MaskEmail(normalized)
		}
	}

	s.recordAudit(ctx, domain.AuditEvent{
		EventType:  domain.EventLoginFailed,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Message:    fmt.Sprintf("login failed via %s: %s", failure.provider, failure.reason),
		Metadata:   requestMetadata(rctx),
	})
}

func requestMetadata(rctx *domain.RequestContext) map[string]any {
	if rctx == nil {
		return nil
	}
	meta := make(map[string]any, 2)
	if rctx.RemoteAddr != "" {
		meta["remote_addr"] = logger.MaskIP(rctx.RemoteAddr)
	}
	if rctx.UserAgent != "" {
		meta["user_agent"] = rctx.UserAgent
	}
	return meta
}

func (s *AuthService) recordAudit(ctx context.Context, event domain.AuditEvent) {
	event.EventID = uuid.NewString()
	event.CreatedAt = time.Now().UTC()
	if err := s.audit.AddEvent(ctx, event); err != nil {
		s.logger.Warn("audit event failed", zap.String("event_type", event.EventType), zap.Error(err))
	}
}
