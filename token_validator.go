package auth

// TokenValidator checks a raw token string and returns its claims. Callers
// depend on this interface rather than on a concrete signing scheme, so the
// gate and the session layer can swap verification strategies.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidatorFunc adapts a plain function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	if f == nil {
		return nil, ErrUnableToDecodeSession
	}
	return f(tokenString)
}

// MultiTokenValidator runs a chain of validators in registration order.
// A malformed-token error moves on to the next validator; any other
// failure (expired, bad signature) stops the chain, since a later
// validator accepting a token the first one rejected would mask key or
// issuer mismatches.
type MultiTokenValidator struct {
	chain []TokenValidator
}

// NewMultiTokenValidator builds a composite validator, skipping nil entries.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	m := &MultiTokenValidator{}
	for _, v := range validators {
		if v != nil {
			m.chain = append(m.chain, v)
		}
	}
	return m
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (AuthClaims, error) {
	var malformed error
	for _, v := range m.chain {
		claims, err := v.Validate(tokenString)
		switch {
		case err == nil:
			return claims, nil
		case IsMalformedError(err):
			malformed = err
		default:
			return nil, err
		}
	}
	if malformed != nil {
		return nil, malformed
	}
	return nil, ErrTokenMalformed
}
