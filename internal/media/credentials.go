package media

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Credential grants one user access to one media channel.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChannelClaims is the payload of a channel token.
type ChannelClaims struct {
	jwt.RegisteredClaims

	Channel string `json:"channel"`
	UserID  string `json:"user_id"`
}

// CredentialIssuer signs HS256 channel tokens that the media provider verifies.
type CredentialIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewCredentialIssuer(secret, issuer string, ttl time.Duration) (*CredentialIssuer, error) {
	if secret == "" {
		return nil, errors.New("MEDIA_CREDENTIAL_SECRET is required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &CredentialIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

func (i *CredentialIssuer) Issue(now time.Time, channel, userID string) (Credential, error) {
	if channel == "" || userID == "" {
		return Credential{}, errors.New("media: channel and user_id required")
	}
	exp := now.Add(i.ttl)
	claims := ChannelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Channel: channel,
		UserID:  userID,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: tok, ExpiresAt: exp}, nil
}

// Verify parses a channel token as of now.
func (i *CredentialIssuer) Verify(token string, now time.Time) (ChannelClaims, error) {
	var claims ChannelClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		return ChannelClaims{}, err
	}
	if claims.Channel == "" || claims.UserID == "" {
		return ChannelClaims{}, errors.New("media: channel token missing claims")
	}
	return claims, nil
}
