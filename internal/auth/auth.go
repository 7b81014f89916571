// Package auth issues and verifies JWT access/refresh token pairs and hashes
// passwords.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrPasswordMismatch = errors.New("password mismatch")
)

// Kind distinguishes access from refresh tokens so one cannot stand in for
// the other even if both secrets were equal.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims holds JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Kind  Kind   `json:"kind"`
}

// UserID returns the numeric subject.
func (c *Claims) UserID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

type Config struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
}

// Pair is an access token with the refresh token that renews it.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

type Issuer struct {
	cfg Config
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Issuer{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Issue signs a new token pair for the user.
func (i *Issuer) Issue(userID int64, email string) (Pair, error) {
	access, err := i.sign(KindAccess, userID, email, i.cfg.AccessTTL, i.cfg.AccessSecret)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(KindRefresh, userID, email, i.cfg.RefreshTTL, i.cfg.RefreshSecret)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *Issuer) sign(kind Kind, userID int64, email string, ttl time.Duration, secret string) (string, error) {
	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Kind:  kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	return i.verify(token, KindAccess, i.cfg.AccessSecret)
}

func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	return i.verify(token, KindRefresh, i.cfg.RefreshSecret)
}

func (i *Issuer) verify(token string, kind Kind, secret string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Kind != kind || claims.UserID() == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword hashes password with the configured bcrypt cost.
func (i *Issuer) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), i.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword returns ErrPasswordMismatch unless password matches hash.
func ComparePassword(hash, password string) error {
	if hash == "" {
		return ErrPasswordMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

type userKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user's claims.
func WithUser(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, userKey{}, c)
}

// UserFrom returns the claims stored by WithUser.
func UserFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(userKey{}).(*Claims)
	return c, ok && c != nil
}
