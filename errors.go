package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients alongside structured errors.
const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeCorruptCredential  = "CORRUPT_CREDENTIAL"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenSignature     = "TOKEN_SIGNATURE_INVALID"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenNotFound      = "TOKEN_NOT_FOUND"
	TextCodeMaintenanceActive  = "MAINTENANCE_ACTIVE"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeSessionDecodeError = "SESSION_DECODE_ERROR"
	TextCodeClaimsMappingError = "CLAIMS_MAPPING_ERROR"
	TextCodeDataParseError     = "DATA_PARSE_ERROR"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrMismatchedHashAndPassword is returned for any credential mismatch. The
// message never says whether the email or the password was wrong.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotVerified is returned when credentials check out but the account
// has not confirmed its email address yet.
var ErrEmailNotVerified = goerrors.New("email address has not been verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned while the cool down window is active
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = goerrors.New("password cannot be an empty string", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrCorruptCredential flags a stored hash that bcrypt cannot parse. This is a
// data problem, not a user mistake.
var ErrCorruptCredential = goerrors.New("stored credential hash is corrupt", goerrors.CategoryInternal).
	WithTextCode(TextCodeCorruptCredential).
	WithCode(goerrors.CodeInternal)

// ErrTokenMalformed means the token structure could not be parsed
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenSignatureInvalid means the token was signed with a different key
var ErrTokenSignatureInvalid = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenSignature).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired means the token was valid but is past its expiry
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenNotFound covers single use tokens that are absent, already consumed,
// or expired. Callers must not be able to tell those cases apart.
var ErrTokenNotFound = goerrors.New("token not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUnauthorized is returned when a request carries no usable session
var ErrUnauthorized = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when a session is valid but lacks the required role
var ErrForbidden = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden)

// ErrMaintenanceActive is returned when the maintenance gate blocks a request
var ErrMaintenanceActive = goerrors.New("platform is under maintenance", goerrors.CategoryAuthz).
	WithTextCode(TextCodeMaintenanceActive).
	WithCode(goerrors.CodeForbidden)

// ErrImmutableClaimMutation flags a claims decorator touching identity claims
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode("IMMUTABLE_CLAIM_MUTATION").
	WithCode(goerrors.CodeInternal)

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth).
	WithTextCode(TextCodeClaimsMappingError).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToParseData parse error
var ErrUnableToParseData = goerrors.New("unable to parse data", goerrors.CategoryBadInput).
	WithTextCode(TextCodeDataParseError)

// IsTokenExpiredError will check for expired tokens, including legacy errors
// that only carry the jwt library message.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsSignatureError will check for signature mismatches
func IsSignatureError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenSignatureInvalid) {
		return true
	}
	return strings.Contains(err.Error(), "signature is invalid")
}

// IsTokenNotFoundError reports whether a single use token lookup failed
func IsTokenNotFoundError(err error) bool {
	return goerrors.Is(err, ErrTokenNotFound)
}

// IsEmailNotVerifiedError reports whether login was refused for lack of a
// verified email address
func IsEmailNotVerifiedError(err error) bool {
	return goerrors.Is(err, ErrEmailNotVerified)
}
