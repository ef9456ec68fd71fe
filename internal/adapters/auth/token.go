// Package auth authenticates callers. A caller proves it controls an
// identity by signing a short-lived EdDSA JWT whose subject is that
// identity; the verifier checks the signature against the key the identity
// names. Each token is bound to one request and accepted once.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/okian/scorenft/internal/domain/model"
)

const (
	// DefaultAudience is used when no audience is configured.
	DefaultAudience = "scorenft"
	// DefaultMaxTTL caps token lifetimes when no cap is configured.
	DefaultMaxTTL = 5 * time.Minute
)

// Claims are the verified claims of a call token.
type Claims struct {
	Caller    model.Identity
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// callClaims is the token payload: the registered claims plus the request
// binding.
type callClaims struct {
	jwt.RegisteredClaims
	Method     string `json:"htm"`
	Path       string `json:"htu"`
	BodyDigest string `json:"bdh"`
}

// Signer issues call tokens for one identity.
type Signer struct {
	key      ed25519.PrivateKey
	identity model.Identity
	audience string
	now      func() time.Time
}

// NewSigner returns a signer for key.
func NewSigner(key ed25519.PrivateKey, audience string) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes", ed25519.PrivateKeySize)
	}
	if strings.TrimSpace(audience) == "" {
		audience = DefaultAudience
	}
	pub, _ := key.Public().(ed25519.PublicKey)
	return &Signer{
		key:      key,
		identity: model.IdentityFromPublicKey(pub),
		audience: audience,
		now:      time.Now,
	}, nil
}

// Identity returns the identity tokens are issued for.
func (s *Signer) Identity() model.Identity { return s.identity }

// Issue signs a token valid for ttl that authorizes req only.
func (s *Signer) Issue(ttl time.Duration, req Request) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	if req.Method == "" || req.Path == "" {
		return "", fmt.Errorf("token must be bound to a method and path")
	}
	now := s.now().UTC()
	claims := callClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.identity.String(),
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Method:     strings.ToUpper(req.Method),
		Path:       req.Path,
		BodyDigest: BodyDigest(req.Body),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verifier authenticates call tokens.
type Verifier struct {
	audience  string
	maxTTL    time.Duration
	now       func() time.Time
	cacheSize int
	replays   *replayCache
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithAudience sets the required audience.
func WithAudience(audience string) VerifierOption {
	return func(v *Verifier) {
		if a := strings.TrimSpace(audience); a != "" {
			v.audience = a
		}
	}
}

// WithMaxTTL caps the accepted exp-iat span.
func WithMaxTTL(ttl time.Duration) VerifierOption {
	return func(v *Verifier) {
		if ttl > 0 {
			v.maxTTL = ttl
		}
	}
}

// WithClock overrides the verifier's time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithReplayCacheSize bounds how many used token ids are remembered. Zero
// or negative means unbounded.
func WithReplayCacheSize(size int) VerifierOption {
	return func(v *Verifier) {
		v.cacheSize = size
	}
}

// NewVerifier returns a verifier with defaults applied.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		audience:  DefaultAudience,
		maxTTL:    DefaultMaxTTL,
		now:       time.Now,
		cacheSize: DefaultReplayCacheSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.replays = newReplayCache(v.cacheSize)
	return v
}

// RememberedTokens returns how many used token ids are held.
func (v *Verifier) RememberedTokens() int { return v.replays.len() }

// Authenticate verifies token for req and returns its claims. A token is
// accepted once; presenting it again fails with ErrTokenReplayed.
func (v *Verifier) Authenticate(token string, req Request) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	var parsed callClaims
	var caller model.Identity
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		id, err := model.ParseIdentity(parsed.Subject)
		if err != nil {
			return nil, err
		}
		caller = id
		return id.PublicKey()
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, mapJWTError(err))
	}

	if !audienceContains(parsed.Audience, v.audience) {
		return Claims{}, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if parsed.IssuedAt == nil || parsed.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: iat and exp are required", ErrInvalidToken)
	}
	iat := parsed.IssuedAt.Time.UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if exp.Sub(iat) > v.maxTTL {
		return Claims{}, fmt.Errorf("%w: lifetime exceeds %s", ErrInvalidToken, v.maxTTL)
	}
	now := v.now().UTC()
	if !exp.After(now) {
		return Claims{}, fmt.Errorf("%w: token is expired", ErrInvalidToken)
	}
	// one second of leeway for clock skew between caller and server
	if iat.After(now.Add(time.Second)) {
		return Claims{}, fmt.Errorf("%w: token issued in the future", ErrInvalidToken)
	}
	if err := parsed.matches(req); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.ID == "" {
		return Claims{}, fmt.Errorf("%w: jti is required", ErrInvalidToken)
	}
	if !v.replays.claim(parsed.ID, exp, now) {
		return Claims{}, fmt.Errorf("%w: %s", ErrTokenReplayed, parsed.ID)
	}

	return Claims{
		Caller:    caller,
		TokenID:   parsed.ID,
		IssuedAt:  iat,
		ExpiresAt: exp,
	}, nil
}

func (c *callClaims) matches(req Request) error {
	switch {
	case c.Method != strings.ToUpper(req.Method):
		return fmt.Errorf("token is bound to method %q", c.Method)
	case c.Path != req.Path:
		return fmt.Errorf("token is bound to path %q", c.Path)
	case c.BodyDigest != BodyDigest(req.Body):
		return errors.New("body does not match the token digest")
	}
	return nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidIdentity):
		return errors.New("subject is not a valid identity")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrEd25519Verification):
		return errors.New("signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return errors.New("signing method is invalid")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errors.New("token is malformed")
	default:
		return err
	}
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
