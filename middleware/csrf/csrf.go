package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required for stateless mode")
)

// DefaultTokenLength is the byte length of generated tokens
const DefaultTokenLength = 32

// DefaultContextKey is where the middleware stores the token in request locals
const DefaultContextKey = "csrf_token"

// DefaultFormFieldName is the form field checked for the token
const DefaultFormFieldName = "_token"

// DefaultHeaderName is the request header checked for the token
const DefaultHeaderName = "X-CSRF-Token"

// DefaultTemplateHelpersKey is the locals key the helper map is merged under
const DefaultTemplateHelpersKey = "template_helpers"

// minSecureKeyBytes is the floor for stateless signing keys
const minSecureKeyBytes = 32

// Config controls token generation, lookup, and validation.
type Config struct {
	// Skip bypasses the middleware entirely when it returns true
	Skip func(router.Context) bool

	// TokenLength is the entropy of generated tokens in bytes
	TokenLength int

	// ContextKey is the locals key holding the active token
	ContextKey string

	// FormFieldName is the form field inspected during extraction
	FormFieldName string

	// HeaderName is the header inspected during extraction
	HeaderName string

	// TokenLookup chains extraction sources, e.g. "form:_token,header:X-CSRF-Token"
	TokenLookup string

	// Storage keeps tokens server side. Leaving it nil switches the
	// middleware to stateless HMAC-signed tokens.
	Storage Storage

	// ErrorHandler receives every validation failure
	ErrorHandler router.ErrorHandler

	// SuccessHandler runs when the request passes the check
	SuccessHandler router.HandlerFunc

	// SafeMethods skip validation, they still get a token issued
	SafeMethods []string

	// Expiration bounds token lifetime
	Expiration time.Duration

	// SecureKey signs stateless tokens, at least 32 bytes
	SecureKey []byte

	// DisableTemplateHelpers turns off the helper map merged into locals
	DisableTemplateHelpers bool
	// TemplateHelpersKey is the locals key the helper map is merged under
	TemplateHelpersKey string
}

// Storage persists tokens keyed by session
type Storage interface {
	Get(key string) (string, error)
	Set(key string, value string, expiration time.Duration) error
	Delete(key string) error
}

// TokenExtractor pulls a candidate token out of the request
type TokenExtractor func(router.Context) (string, error)

func (c Config) withDefaults() Config {
	if c.TokenLength == 0 {
		c.TokenLength = DefaultTokenLength
	}
	if c.ContextKey == "" {
		c.ContextKey = DefaultContextKey
	}
	if c.FormFieldName == "" {
		c.FormFieldName = DefaultFormFieldName
	}
	if c.HeaderName == "" {
		c.HeaderName = DefaultHeaderName
	}
	if c.SafeMethods == nil {
		c.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}
	if c.Expiration == 0 {
		c.Expiration = 24 * time.Hour
	}
	if c.TemplateHelpersKey == "" {
		c.TemplateHelpersKey = DefaultTemplateHelpersKey
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = newErrorHandler()
	}
	if c.SuccessHandler == nil {
		c.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}
	c.SecureKey = ensureSecureKey(c.SecureKey, c.Storage)
	return c
}

// New builds the CSRF middleware. Every request gets a token exposed through
// locals, unsafe methods additionally have to present one.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		var cfg Config
		if len(config) > 0 {
			cfg = config[0]
		}
		cfg = cfg.withDefaults()

		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			token, err := issueToken(ctx, cfg)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, token)
			ctx.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
			ctx.Locals(cfg.ContextKey+"_header", cfg.HeaderName)

			if !cfg.DisableTemplateHelpers {
				ctx.LocalsMerge(cfg.TemplateHelpersKey, CSRFTemplateHelpersWithRouter(ctx, cfg.ContextKey))
			}

			if slices.Contains(cfg.SafeMethods, strings.ToUpper(ctx.Method())) {
				return cfg.SuccessHandler(ctx)
			}

			if err := checkRequestToken(ctx, cfg, token); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// issueToken returns the token the current request should present. Stored
// tokens are reused for the session, stateless tokens are minted per request.
func issueToken(ctx router.Context, cfg Config) (string, error) {
	if cfg.Storage == nil {
		return mintSignedToken(ctx, cfg)
	}

	key := sessionKey(ctx)
	if token, err := cfg.Storage.Get(key); err == nil && token != "" {
		return token, nil
	}

	token, err := randomHex(cfg.TokenLength)
	if err != nil {
		return "", err
	}

	if err := cfg.Storage.Set(key, token, cfg.Expiration); err != nil {
		return "", err
	}

	return token, nil
}

func checkRequestToken(ctx router.Context, cfg Config, expected string) error {
	received, err := extractToken(ctx, cfg)
	if err != nil {
		return err
	}
	if received == "" {
		return ErrTokenMissing
	}

	if cfg.Storage == nil {
		return verifySignedToken(ctx, cfg, received)
	}

	if expected == "" {
		return ErrTokenMismatch
	}
	if subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

func randomHex(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// mintSignedToken produces a base64 token of the form
// timestamp:nonce:session:signature where the signature covers the first
// three fields. The session binding stops a token minted for one visitor
// from being replayed by another.
func mintSignedToken(ctx router.Context, cfg Config) (string, error) {
	if len(cfg.SecureKey) == 0 {
		return "", ErrSecureKeyMissing
	}

	nonce := make([]byte, cfg.TokenLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	payload := fmt.Sprintf("%d:%s:%s",
		time.Now().UTC().Unix(),
		hex.EncodeToString(nonce),
		sessionKey(ctx),
	)

	signature := signPayload(cfg.SecureKey, payload)
	token := payload + ":" + hex.EncodeToString(signature)

	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func verifySignedToken(ctx router.Context, cfg Config, token string) error {
	if len(cfg.SecureKey) == 0 {
		return ErrSecureKeyMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	issuedAt, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return ErrTokenMismatch
	}
	signature, err := hex.DecodeString(parts[3])
	if err != nil {
		return ErrTokenMismatch
	}

	payload := strings.Join(parts[:3], ":")
	if !hmac.Equal(signature, signPayload(cfg.SecureKey, payload)) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(sessionKey(ctx))) != 1 {
		return ErrTokenMismatch
	}

	if cfg.Expiration > 0 {
		if time.Now().UTC().After(time.Unix(issuedAt, 0).Add(cfg.Expiration)) {
			return ErrTokenExpired
		}
	}

	return nil
}

func signPayload(key []byte, payload string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func extractToken(ctx router.Context, cfg Config) (string, error) {
	for _, extractor := range parseLookupChain(cfg.TokenLookup, cfg.FormFieldName, cfg.HeaderName) {
		token, err := extractor(ctx)
		if token != "" && err == nil {
			return token, nil
		}
	}
	return "", nil
}

// sessionKey derives the storage and binding key for the current visitor,
// preferring a session or user id and falling back to the client IP.
func sessionKey(ctx router.Context) string {
	if raw := ctx.Locals("session_id"); raw != nil {
		if id, ok := raw.(string); ok && id != "" {
			return "csrf_" + id
		}
	}

	if raw := ctx.Locals("user_id"); raw != nil {
		if id, ok := raw.(string); ok && id != "" {
			return "csrf_user_" + id
		}
	}

	return "csrf_ip_" + ctx.IP()
}

func parseLookupChain(tokenLookup, formField, header string) []TokenExtractor {
	if tokenLookup == "" {
		return []TokenExtractor{
			formExtractor(formField),
			headerExtractor(header),
		}
	}

	var extractors []TokenExtractor
	for _, part := range strings.Split(tokenLookup, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "form:"):
			extractors = append(extractors, formExtractor(strings.TrimPrefix(part, "form:")))
		case strings.HasPrefix(part, "header:"):
			extractors = append(extractors, headerExtractor(strings.TrimPrefix(part, "header:")))
		}
	}

	return extractors
}

func formExtractor(fieldName string) TokenExtractor {
	return func(ctx router.Context) (string, error) {
		return ctx.FormValue(fieldName), nil
	}
}

func headerExtractor(headerName string) TokenExtractor {
	return func(ctx router.Context) (string, error) {
		return ctx.GetString(headerName, ""), nil
	}
}

func newErrorHandler() router.ErrorHandler {
	return func(ctx router.Context, err error) error {
		switch {
		case errors.Is(err, ErrTokenMissing):
			return ctx.Status(router.StatusBadRequest).SendString("CSRF token missing")
		case errors.Is(err, ErrTokenMismatch):
			return ctx.Status(router.StatusForbidden).SendString("CSRF token mismatch")
		case errors.Is(err, ErrTokenExpired):
			return ctx.Status(router.StatusForbidden).SendString("CSRF token expired")
		case errors.Is(err, ErrSecureKeyMissing):
			return ctx.Status(router.StatusInternalServerError).SendString("CSRF configuration error")
		default:
			return ctx.Status(router.StatusInternalServerError).SendString("CSRF validation error")
		}
	}
}

// ensureSecureKey validates or generates the stateless signing key. Storage
// backed deployments never sign, so the key passes through untouched.
func ensureSecureKey(current []byte, storage Storage) []byte {
	if storage != nil {
		return current
	}
	if len(current) > 0 {
		if len(current) < minSecureKeyBytes {
			panic(fmt.Errorf("csrf: secure key must be at least %d bytes, got %d", minSecureKeyBytes, len(current)))
		}
		return current
	}
	key := make([]byte, minSecureKeyBytes)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Errorf("csrf: unable to initialize secure key: %w", err))
	}
	return key
}

// CSRFTemplateHelpersWithRouter builds the helper map templates use to emit
// the token as a hidden field, a meta tag, or a header name.
func CSRFTemplateHelpersWithRouter(ctx router.Context, tokenKey string) map[string]any {
	if tokenKey == "" {
		tokenKey = DefaultContextKey
	}

	token := ""
	if raw := ctx.Locals(tokenKey); raw != nil {
		if val, ok := raw.(string); ok {
			token = val
		}
	}

	fieldName := DefaultFormFieldName
	if raw := ctx.Locals(tokenKey + "_field"); raw != nil {
		if val, ok := raw.(string); ok && val != "" {
			fieldName = val
		}
	}

	headerName := DefaultHeaderName
	if raw := ctx.Locals(tokenKey + "_header"); raw != nil {
		if val, ok := raw.(string); ok && val != "" {
			headerName = val
		}
	}

	return map[string]any{
		"csrf_token":       token,
		"csrf_field":       `<input type="hidden" name="` + fieldName + `" value="` + token + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + token + `">`,
		"csrf_header_name": headerName,
	}
}
