package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
)

// CredentialsError covers bad signup input and failed logins. The message is
// safe to show to the user.
type CredentialsError struct {
	Message string
}

func (e CredentialsError) Error() string { return e.Message }

var errInvalidCredentials = CredentialsError{Message: "invalid email or password"}

// Mailer delivers reset tokens out of band.
type Mailer interface {
	SendResetToken(ctx context.Context, email, token string) error
}

// LogMailer writes reset tokens to the process log. Dev only.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) SendResetToken(_ context.Context, email, token string) error {
	logger := m.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("password reset for %s: token %s", email, token)
	return nil
}

// Service handles signup, login and password resets.
type Service struct {
	Repo   *repo.Repo
	Events events.Writer
	Config *config.Config
	Mailer Mailer
	Now    func() time.Time
}

func New(r *repo.Repo, ev events.Writer, cfg *config.Config) Service {
	return Service{
		Repo:   r,
		Events: ev,
		Config: cfg,
		Mailer: LogMailer{},
		Now:    time.Now,
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) bcryptCost() int {
	if s.Config != nil && s.Config.Auth.BcryptCost != 0 {
		return s.Config.Auth.BcryptCost
	}
	return bcrypt.DefaultCost
}

func (s Service) tokenTTL() time.Duration {
	if s.Config != nil && s.Config.Auth.TokenTTLMinutes > 0 {
		return time.Duration(s.Config.Auth.TokenTTLMinutes) * time.Minute
	}
	return 24 * time.Hour
}

func (s Service) resetTTL() time.Duration {
	if s.Config != nil && s.Config.Auth.ResetTTLMinutes > 0 {
		return time.Duration(s.Config.Auth.ResetTTLMinutes) * time.Minute
	}
	return 30 * time.Minute
}

// Signup registers a new account and returns the created user.
func (s Service) Signup(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, CredentialsError{Message: "a valid email is required"}
	}
	if len(password) < 6 {
		return domain.User{}, CredentialsError{Message: "password must be at least 6 characters"}
	}
	if _, err := s.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, CredentialsError{Message: "email already registered"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost())
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := s.Events.Append(ctx, nil, "user.signed_up", u.ID, "user", u.ID, events.EventPayload{"email": u.Email}); err != nil {
		return u, err
	}
	return u, nil
}

// Login checks credentials and returns a signed bearer token.
func (s Service) Login(ctx context.Context, email, password string) (string, domain.User, error) {
	u, err := s.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", domain.User{}, errInvalidCredentials
		}
		return "", domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", domain.User{}, errInvalidCredentials
	}
	token, err := s.IssueToken(u.ID)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, u, nil
}

// IssueToken signs an HS256 token for the user.
func (s Service) IssueToken(userID string) (string, error) {
	secret := ""
	if s.Config != nil {
		secret = s.Config.Auth.JWTSecret
	}
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL())),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken returns the user id a bearer token was issued for.
func (s Service) VerifyToken(token string) (string, error) {
	secret := ""
	if s.Config != nil {
		secret = s.Config.Auth.JWTSecret
	}
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

// RequestPasswordReset issues a one-time token and hands it to the mailer.
// An unknown email is reported as success so the endpoint cannot be used to
// probe for accounts.
func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)
	expires := s.now().Add(s.resetTTL()).UTC().Format(time.RFC3339)
	if err := s.Repo.InsertResetToken(ctx, domain.ResetToken{
		TokenHash: repo.HashResetToken(token),
		UserID:    u.ID,
		ExpiresAt: expires,
	}); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if err := s.Events.Append(ctx, nil, "user.reset_requested", u.ID, "user", u.ID, nil); err != nil {
		return err
	}
	mailer := s.Mailer
	if mailer == nil {
		mailer = LogMailer{}
	}
	return mailer.SendResetToken(ctx, u.Email, token)
}

// ResetPassword consumes a reset token and sets a new password.
func (s Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 6 {
		return CredentialsError{Message: "password must be at least 6 characters"}
	}
	hash := repo.HashResetToken(token)
	rt, err := s.Repo.GetResetToken(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CredentialsError{Message: "invalid or expired reset token"}
		}
		return err
	}
	expires, err := time.Parse(time.RFC3339, rt.ExpiresAt)
	if err != nil || rt.Used || s.now().After(expires) {
		return CredentialsError{Message: "invalid or expired reset token"}
	}
	if err := s.Repo.MarkResetTokenUsed(ctx, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CredentialsError{Message: "invalid or expired reset token"}
		}
		return err
	}
	pwHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost())
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Repo.UpdateUserPassword(ctx, rt.UserID, string(pwHash)); err != nil {
		return err
	}
	return s.Events.Append(ctx, nil, "user.password_reset", rt.UserID, "user", rt.UserID, nil)
}
