package model

import (
	"net/http"

	"session-auth/pkg/apierror"
)

var (
	// Token and session outcomes
	ErrTokenMalformed    = apierror.New("TOKEN_MALFORMED", "malformed token", "", http.StatusUnauthorized)
	ErrTokenExpired      = apierror.New("TOKEN_EXPIRED", "token expired", "", http.StatusUnauthorized)
	ErrTokenInvalid      = apierror.New("TOKEN_INVALID", "access token signature is invalid", "", http.StatusUnauthorized)
	ErrSessionSuperseded = apierror.New("SESSION_SUPERSEDED", "logged in on another device", "", http.StatusUnauthorized)
	ErrSessionActive     = apierror.New("SESSION_ACTIVE", "account is logged in on another device", "", http.StatusConflict)
	ErrRefreshRejected   = apierror.New("REFRESH_REJECTED", "refresh token rejected", "", http.StatusUnauthorized)
	ErrUnauthorized      = apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized)
	ErrForbidden         = apierror.New("FORBIDDEN", "insufficient permissions", "", http.StatusForbidden)

	// Account outcomes
	ErrAccountInactive    = apierror.New("ACCOUNT_INACTIVE", "account is not active", "", http.StatusForbidden)
	ErrUserNotFound       = apierror.New("NOT_FOUND", "user not found", "", http.StatusNotFound)
	ErrUserAlreadyExists  = apierror.New("ALREADY_EXISTS", "email is already registered", "", http.StatusConflict)
	ErrInvalidCredentials = apierror.New("INVALID_CREDENTIALS", "invalid email or password", "", http.StatusUnauthorized)
	ErrNicknameRejected   = apierror.New("NICKNAME_REJECTED", "nickname is not allowed", "", http.StatusUnprocessableEntity)
	ErrInvalidInput       = apierror.New("BAD_REQUEST", "invalid input", "", http.StatusBadRequest)
	ErrPasswordMismatch   = apierror.New("PASSWORD_MISMATCH", "current password is incorrect", "", http.StatusBadRequest)

	// Email verification outcomes
	ErrVerificationNotFound = apierror.New("VERIFICATION_NOT_FOUND", "no verification is pending for this email", "", http.StatusBadRequest)
	ErrVerificationMismatch = apierror.New("CODE_MISMATCH", "verification code does not match", "", http.StatusBadRequest)
	ErrVerificationExpired  = apierror.New("CODE_EXPIRED", "verification code expired", "", http.StatusBadRequest)
	ErrEmailNotVerified     = apierror.New("EMAIL_NOT_VERIFIED", "email address is not verified", "", http.StatusForbidden)
	ErrMailDelivery         = apierror.New("MAIL_DELIVERY_FAILED", "verification mail could not be sent", "", http.StatusBadGateway)

	// Identity linking outcomes
	ErrProviderAlreadyLinked = apierror.New("ALREADY_LINKED", "account is already linked to a provider", "", http.StatusBadRequest)
	ErrUnsupportedProvider   = apierror.New("UNSUPPORTED_PROVIDER", "oauth provider is not supported", "", http.StatusBadRequest)
	ErrOAuthExchange         = apierror.New("OAUTH_EXCHANGE_FAILED", "oauth provider request failed", "", http.StatusBadGateway)
	ErrOAuthState            = apierror.New("OAUTH_STATE_MISMATCH", "oauth state does not match", "", http.StatusBadRequest)

	// Transient failures of the session store or account store. The only retryable kind.
	ErrUpstreamUnavailable = apierror.New("UPSTREAM_UNAVAILABLE", "upstream temporarily unavailable", "", http.StatusServiceUnavailable)

	ErrImageRejected = apierror.New("IMAGE_REJECTED", "profile image is not an accepted image", "", http.StatusBadRequest)
)
