package api

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskhub/domain"
)

// tokenTTL is the fixed token lifetime. There is no refresh mechanism;
// an expired token means a fresh login.
const tokenTTL = 30 * 24 * time.Hour

// minPasswordLen is the minimum accepted password length at registration.
const minPasswordLen = 6

var (
	// ErrInvalidCredentials is returned for an unknown email and for a
	// wrong password alike, so callers cannot probe which emails exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	errTokenInvalid = errors.New("invalid or expired token")
)

// Auth registers and authenticates users and issues the bearer tokens
// the rest of the API trusts. Tokens are HS256-signed with a server-held
// secret and verified statelessly.
type Auth struct {
	users  UserStore
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

// NewAuth creates a new Auth instance.
func NewAuth(users UserStore, secret []byte) *Auth {
	if len(secret) == 0 {
		panic("api.NewAuth: signing secret must not be empty")
	}
	return &Auth{
		users:  users,
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		now:    time.Now,
	}
}

// Register validates the input, stores the user with a bcrypt-hashed
// password and returns the new identity together with a signed token.
// A duplicate email surfaces as the store's conflict error.
func (a *Auth) Register(ctx context.Context, name, email, password string) (domain.User, string, error) {
	if err := validateRegistration(name, email, password); err != nil {
		return domain.User{}, "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, "", err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
		CreatedAt:    a.now().UTC(),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return domain.User{}, "", err
	}

	token, err := a.Token(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// Login verifies the credentials and issues a token. Lookup failure and
// hash mismatch produce the identical ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	user, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, "", ErrInvalidCredentials
	}

	token, err := a.Token(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// Profile resolves a verified user id back to the stored account.
func (a *Auth) Profile(ctx context.Context, userID string) (domain.User, error) {
	return a.users.UserByID(ctx, userID)
}

// Token signs a bearer token carrying the user identity.
func (a *Auth) Token(userID string) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// UserIDFromAuthHeader extracts and verifies the bearer token from an
// Authorization header value. Verification is stateless: signature plus
// expiry at call time.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerTokenFromHeader(h)
	if err != nil {
		return "", err
	}
	return a.userIDFromToken(token)
}

func (a *Auth) userIDFromToken(token string) (string, error) {
	parsed, err := a.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", errTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errTokenInvalid
	}
	if !claims.VerifyExpiresAt(a.now().Unix(), true) {
		return "", errTokenInvalid
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errTokenInvalid
	}
	return sub, nil
}

func validateRegistration(name, email, password string) error {
	var fields []domain.FieldError
	if name == "" {
		fields = append(fields, domain.FieldError{Field: "name", Message: "Name is required"})
	}
	if _, err := mail.ParseAddress(email); err != nil {
		fields = append(fields, domain.FieldError{Field: "email", Message: "Please enter a valid email"})
	}
	if len(password) < minPasswordLen {
		fields = append(fields, domain.FieldError{Field: "password", Message: "Password must be at least 6 characters"})
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}
