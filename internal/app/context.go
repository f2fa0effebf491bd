package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"taskline/internal/auth"
	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/events"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

// App wires the storage, lifecycle engine and auth service for one workspace.
type App struct {
	DB     *sql.DB
	Repo   *repo.Repo
	Engine engine.Engine
	Auth   auth.Service
	Config *config.Config
}

// Open prepares the workspace database and builds the service graph. The
// caller owns Close.
func Open(workspace string) (*App, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	r := repo.New(conn)
	if err := r.PruneResetTokens(context.Background(), time.Now()); err != nil {
		log.Printf("prune reset tokens: %v", err)
	}
	ev := events.Writer{DB: conn}
	return &App{
		DB:     conn,
		Repo:   r,
		Engine: engine.New(r, ev, cfg),
		Auth:   auth.New(r, ev, cfg),
		Config: cfg,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// ResolveOwner maps a CLI-supplied email to the acting user.
func (a *App) ResolveOwner(ctx context.Context, email string) (domain.User, error) {
	if email == "" {
		return domain.User{}, fmt.Errorf("user not specified; use --user or TASKLINE_USER")
	}
	u, err := a.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, fmt.Errorf("no account for %s; run 'tl user create' first", email)
		}
		return domain.User{}, err
	}
	return u, nil
}
