package jwt

import (
	"errors"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Verifier checks HS256 access tokens minted by the external identity
// provider. This service never issues tokens itself.
type Verifier struct {
	secret   []byte
	audience string
}

type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwtlib.RegisteredClaims
}

func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		audience: audience,
	}
}

func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwtlib.WithAudience(v.audience))
	}

	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	return claims, nil
}
