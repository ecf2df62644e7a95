package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minKeyLen = 32

// Claims is the signed claim set carried by every issued token. Scope
// is the space-delimited role/permission snapshot taken at issuance;
// it is advisory only, authorization re-resolves from the directory.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// ScopeList splits the scope claim back into individual names.
func (c *Claims) ScopeList() []string {
	if strings.TrimSpace(c.Scope) == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// Codec signs and verifies compact tokens with a single process-wide
// HMAC-SHA512 key. The key is fixed at construction and never rotated;
// key rotation is a documented limitation of this design.
type Codec struct {
	key    []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// CodecWithClock overrides the time source, for tests.
func CodecWithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec for the given symmetric key and issuer.
func NewCodec(key []byte, issuer string, opts ...CodecOption) (*Codec, error) {
	if len(key) < minKeyLen {
		return nil, errors.New("auth: signing key must be at least 32 bytes")
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("auth: issuer is required")
	}
	c := &Codec{
		key:    key,
		issuer: issuer,
		now:    time.Now,
		// Expiry is deliberately not validated here: introspection and
		// refresh apply different expiry policies on the same claims.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issuer returns the issuer claim stamped on every token.
func (c *Codec) Issuer() string {
	return c.issuer
}

// Issue builds a claim set with a fresh jti and signs it. Purely
// functional given the key: no state is touched.
func (c *Codec) Issue(subject string, scope []string, ttl time.Duration) (string, *Claims, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", nil, errors.New("auth: subject is required")
	}
	if ttl <= 0 {
		return "", nil, errors.New("auth: ttl must be greater than zero")
	}

	now := c.now().UTC()
	claims := &Claims{
		Scope: strings.Join(scope, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.key)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// DecodeAndVerify parses the compact form and checks the signature.
// It returns ErrMalformedToken when the wire form cannot be parsed and
// ErrBadSignature when the MAC does not match. Expired tokens decode
// successfully; callers apply their own expiry policy.
func (c *Codec) DecodeAndVerify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}
	parsed, err := c.parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrMalformedToken
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrMalformedToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrMalformedToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrMalformedToken
	}
	// Issuers match exactly; a token minted for another deployment is a
	// claim-level defect, not a MAC failure.
	if claims.Issuer != c.issuer {
		return nil, ErrMalformedToken
	}
	return claims, nil
}
