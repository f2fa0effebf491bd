package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskline/internal/auth"
	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/events"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

type captureMailer struct {
	email string
	token string
}

func (m *captureMailer) SendResetToken(_ context.Context, email, token string) error {
	m.email = email
	m.token = token
	return nil
}

func newTestService(t *testing.T) (auth.Service, *captureMailer) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	mailer := &captureMailer{}
	svc := auth.New(repo.New(conn), events.Writer{DB: conn}, cfg)
	svc.Mailer = mailer
	return svc, mailer
}

func TestSignupAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.Signup(ctx, " Alice@Example.COM ", "hunter22")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", u.Email)
	}
	token, logged, err := svc.Login(ctx, "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != u.ID {
		t.Fatalf("login returned wrong user")
	}
	owner, err := svc.VerifyToken(token)
	if err != nil || owner != u.ID {
		t.Fatalf("verify: %s %v", owner, err)
	}
}

func TestSignupRejections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, "not-an-email", "hunter22"); err == nil {
		t.Fatal("expected email rejection")
	}
	if _, err := svc.Signup(ctx, "a@b.co", "short"); err == nil {
		t.Fatal("expected password rejection")
	}
	if _, err := svc.Signup(ctx, "a@b.co", "hunter22"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Signup(ctx, "A@B.CO", "hunter22")
	var cred auth.CredentialsError
	if !errors.As(err, &cred) {
		t.Fatalf("expected duplicate email rejection, got %v", err)
	}
}

func TestLoginBadPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, "a@b.co", "hunter22"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Login(ctx, "a@b.co", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
	if _, _, err := svc.Login(ctx, "nobody@b.co", "hunter22"); err == nil {
		t.Fatal("expected login failure for unknown email")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, "a@b.co", "hunter22"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RequestPasswordReset(ctx, "a@b.co"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if mailer.token == "" || mailer.email != "a@b.co" {
		t.Fatalf("mailer not invoked: %+v", mailer)
	}
	if err := svc.ResetPassword(ctx, mailer.token, "newpass99"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@b.co", "hunter22"); err == nil {
		t.Fatal("old password still valid")
	}
	if _, _, err := svc.Login(ctx, "a@b.co", "newpass99"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	// token is single use
	if err := svc.ResetPassword(ctx, mailer.token, "anotherpass"); err == nil {
		t.Fatal("expected used token rejection")
	}
}

func TestPasswordResetUnknownEmailSilent(t *testing.T) {
	svc, mailer := newTestService(t)
	if err := svc.RequestPasswordReset(context.Background(), "ghost@b.co"); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if mailer.token != "" {
		t.Fatal("mailer must not fire for unknown email")
	}
}

func TestPasswordResetExpiredToken(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, "a@b.co", "hunter22"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RequestPasswordReset(ctx, "a@b.co"); err != nil {
		t.Fatal(err)
	}
	svc.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if err := svc.ResetPassword(ctx, mailer.token, "newpass99"); err == nil {
		t.Fatal("expected expired token rejection")
	}
}
