// Package vault is the Credential Vault (spec.md §4.3, component C3): it
// hashes and verifies administrator credentials, verifies application
// secrets, and mints the signed bearer tokens both auth paths return.
//
// Grounded on the teacher's common/net/http.FixedBasicAuthFunc for the
// constant-time comparison discipline, generalized from a fixed pair to a
// Store-backed administrator lookup and an application-secret path.
package vault

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rayattack/amebo/internal/ameboerr"
)

const (
	// SchemeBasic identifies an administrator login.
	SchemeBasic = "basic"
	// SchemeToken identifies an application login.
	SchemeToken = "token"

	tokenMaxAge = 10 * time.Minute
)

// AdminLookup resolves the stored password hash for username, returning
// ameboerr.NotFoundError if no administrator with that username exists.
type AdminLookup func(ctx context.Context, username string) (passwordHash string, err error)

// AppLookup resolves the stored secret for an application name, returning
// ameboerr.NotFoundError if no such application exists.
type AppLookup func(ctx context.Context, application string) (secret string, err error)

// Vault mints and verifies bearer tokens and checks the two credential
// kinds Amebo recognizes.
type Vault struct {
	secret   []byte
	adminOf  AdminLookup
	secretOf AppLookup
}

// New returns a Vault signing tokens with secret and resolving credentials
// via adminOf and secretOf.
func New(secret string, adminOf AdminLookup, secretOf AppLookup) *Vault {
	return &Vault{secret: []byte(secret), adminOf: adminOf, secretOf: secretOf}
}

// HashPassword hashes a plaintext administrator password with bcrypt, the
// memory-hard function spec.md §3 requires for administrator credentials.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hashed), nil
}

// AuthenticateAdmin verifies username/password against the stored hash and
// mints a bearer token on success.
func (v *Vault) AuthenticateAdmin(ctx context.Context, username, password string) (string, error) {
	hash, err := v.adminOf(ctx, username)
	if err != nil {
		return "", ameboerr.UnauthorizedError{Message: "invalid administrator credentials"}
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", ameboerr.UnauthorizedError{Message: "invalid administrator credentials"}
	}

	return v.mint(SchemeBasic, username)
}

// AuthenticateApplication verifies username/secret and mints a bearer token
// on success. The comparison is constant-time since the secret is compared
// verbatim, not hashed (spec.md §3).
func (v *Vault) AuthenticateApplication(ctx context.Context, application, secret string) (string, error) {
	stored, err := v.secretOf(ctx, application)
	if err != nil {
		return "", ameboerr.UnauthorizedError{Message: "invalid application credentials"}
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) != 1 {
		return "", ameboerr.UnauthorizedError{Message: "invalid application credentials"}
	}

	return v.mint(SchemeToken, application)
}

func (v *Vault) mint(scheme, username string) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"scheme":   scheme,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(tokenMaxAge).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Claims is the decoded, verified content of a bearer token.
type Claims struct {
	Scheme   string
	Username string
	IssuedAt time.Time
}

// Verify parses and validates tokenString, returning its claims.
func (v *Vault) Verify(tokenString string) (Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ameboerr.ForbiddenError{Message: "missing or invalid bearer token"}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ameboerr.ForbiddenError{Message: "missing or invalid bearer token"}
	}

	scheme, _ := claims["scheme"].(string)
	username, _ := claims["username"].(string)

	var issuedAt time.Time
	if iat, ok := claims["iat"].(float64); ok {
		issuedAt = time.Unix(int64(iat), 0)
	}

	return Claims{Scheme: scheme, Username: username, IssuedAt: issuedAt}, nil
}

// TokenCookie returns the name, value and max-age (in seconds) of the cookie
// that carries token alongside the response body, per spec.md §4.3/§6. It
// does not set the cookie's HTTP-only, SameSite or Secure attributes; the
// caller does.
func TokenCookie(token string) (name, value string, maxAge int) {
	return "Authentication", token, int(tokenMaxAge.Seconds())
}
