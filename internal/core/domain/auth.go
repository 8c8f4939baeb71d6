package domain

// ReportType controls how loudly an authentication failure reason is
// surfaced to the audit trail.
type ReportType string

const (
	// ReportAlways failures are audit-worthy whenever they occur.
	ReportAlways ReportType = "always"
	// ReportOnFailure failures are audited only when the caller asked for
	// failure logging and the whole provider loop failed.
	ReportOnFailure ReportType = "onFailure"
	// ReportNever failures are expected noise and are never audited.
	ReportNever ReportType = "never"
)

// FailureReason classifies why a provider rejected an authentication
// attempt. End users never see the distinction; only the audit trail does.
type FailureReason string

const (
	FailureBadCredentials FailureReason = "bad-credentials"
	FailureUserUnknown    FailureReason = "user-unknown"
	FailureConfiguration  FailureReason = "configuration-error"
	FailureNotApplicable  FailureReason = "not-applicable"
)

// Report returns the audit verbosity for the reason.
func (f FailureReason) Report() ReportType {
	switch f {
	case FailureConfiguration:
		return ReportAlways
	case FailureNotApplicable:
		return ReportNever
	default:
		return ReportOnFailure
	}
}

// RequestContext carries the request-scoped attributes a request-based
// (SSO/header) provider may inspect. It deliberately hides the transport:
// providers never see the servlet-style request object itself.
type RequestContext struct {
	Headers    map[string]string
	RemoteAddr string
	UserAgent  string
}

// Header returns the named header or "".
func (r *RequestContext) Header(name string) string {
	if r == nil {
		return ""
	}
	return r.Headers[name]
}

// AuthenticationResponse is the transient outcome of invoking a single
// provider: a validated email on success, a classified failure otherwise, or
// a redirect hand-off to an external identity provider.
type AuthenticationResponse struct {
	Provider string
	Email    string
	Failure  FailureReason
	Redirect string
}

// Succeeded reports whether the provider validated the credentials.
func (r AuthenticationResponse) Succeeded() bool {
	return r.Email != "" && r.Failure == "" && r.Redirect == ""
}

// AuthSuccess builds a success response carrying the validated email.
func AuthSuccess(provider, email string) AuthenticationResponse {
	return AuthenticationResponse{Provider: provider, Email: email}
}

// AuthFailure builds a failure response with the given classification.
func AuthFailure(provider string, reason FailureReason) AuthenticationResponse {
	return AuthenticationResponse{Provider: provider, Failure: reason}
}

// AuthRedirect builds a redirect response handing the attempt off to an
// external identity provider.
func AuthRedirect(provider, url string) AuthenticationResponse {
	return AuthenticationResponse{Provider: provider, Redirect: url}
}

// AuthStatus is the overall outcome of an authentication attempt.
type AuthStatus string

const (
	AuthSuccessStatus   AuthStatus = "success"
	AuthBadCredentials  AuthStatus = "bad-credentials"
	AuthInactiveAccount AuthStatus = "inactive"
)

// AuthenticationResult is the dispatcher's answer to the caller. Callers
// surface BadCredentials and InactiveAccount identically to end users; the
// distinction exists for the audit trail and admin diagnostics.
type AuthenticationResult struct {
	Status   AuthStatus
	User     *User
	Provider string
}

// ImpersonationKind tags the overlay variants.
type ImpersonationKind string

const (
	ImpersonationNone  ImpersonationKind = "none"
	ImpersonationUser  ImpersonationKind = "user"
	ImpersonationGroup ImpersonationKind = "group"
)

// ImpersonationContext overlays an alternate identity atop an authenticated
// admin. Values are immutable; ending impersonation is simply dropping the
// overlay and resuming use of the admin's own context, so there is no window
// in which neither context is active.
type ImpersonationContext struct {
	Kind        ImpersonationKind
	Admin       User
	TargetUser  *User
	TargetGroup *Group
}

// Identity returns the effective user identity for the context.
func (c ImpersonationContext) Identity() User {
	if c.Kind == ImpersonationUser && c.TargetUser != nil {
		return *c.TargetUser
	}
	return c.Admin
}

// End returns the admin's own, non-impersonating context.
func (c ImpersonationContext) End() ImpersonationContext {
	return ImpersonationContext{Kind: ImpersonationNone, Admin: c.Admin}
}
