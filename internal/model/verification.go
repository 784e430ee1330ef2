package model

import "time"

// EmailVerification is the pending or completed proof that someone controls
// an address. One row per email; a resend replaces the code.
type EmailVerification struct {
	Email     string
	Code      string
	Verified  bool
	CreatedAt time.Time
}

type SendCodeRequest struct {
	Email string `json:"email"`
}

type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type VerificationStatus struct {
	Email     string `json:"email"`
	Verified  bool   `json:"verified"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}
