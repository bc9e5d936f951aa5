package auth

import "context"

// OtpProvider defines the interface for OTP operations
type OtpProvider interface {
	Issue(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) error
}
