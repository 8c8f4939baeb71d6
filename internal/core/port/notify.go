package port

import "context"

// VerificationSender delivers a new-account verification token. Rendering
// and transport of the message are out of scope; the core only produces the
// token.
type VerificationSender interface {
	SendVerification(ctx context.Context, email, token string) error
}
