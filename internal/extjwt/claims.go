package extjwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of EXTJWT claims worth showing to a user. The
// signature is not verified; only the upload server can do that.
type Claims struct {
	Subject   string    `json:"sub,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	Account   string    `json:"account,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Account string `json:"account"`
	Channel string `json:"channel"`
}

// Inspect decodes the claims of token without verifying its signature.
func Inspect(token string) (Claims, error) {
	var tc tokenClaims

	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return Claims{}, fmt.Errorf("extjwt: decoding token claims: %w", err)
	}

	c := Claims{
		Subject: tc.Subject,
		Issuer:  tc.Issuer,
		Account: tc.Account,
		Channel: tc.Channel,
	}

	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}

	return c, nil
}
