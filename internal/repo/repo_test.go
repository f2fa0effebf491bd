package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/migrate"
	"taskline/internal/repo"
	"taskline/internal/store"
)

func newTestRepo(t *testing.T) *repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn)
	r.Now = func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	return r
}

func create(t *testing.T, r *repo.Repo, owner, name string) string {
	t.Helper()
	id, err := r.CreateTask(context.Background(), owner, store.TaskFields{
		Name: name, Description: "d", Deadline: "2024-03-20",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestCreateTaskDefaults(t *testing.T) {
	r := newTestRepo(t)
	id := create(t, r, "u1", "First")
	task, err := r.GetTask(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != domain.StatusPending || task.CompletedAt != nil {
		t.Fatalf("bad defaults: %+v", task)
	}
	if task.CreatedAt != "2024-03-15T09:00:00Z" || task.UpdatedAt != task.CreatedAt {
		t.Fatalf("bad timestamps: %+v", task)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.GetTask(context.Background(), "missing")
	var nf store.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestFindByOwnerAndNormalizedName(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	create(t, r, "u1", "Buy Milk")
	create(t, r, "u2", "buy milk")
	matches, err := r.FindByOwnerAndNormalizedName(ctx, "u1", "buy milk")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].OwnerID != "u1" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestSubscribeByOwner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	var snapshots [][]domain.Task
	unsub := r.SubscribeByOwner("u1", func(tasks []domain.Task) {
		snapshots = append(snapshots, tasks)
	})

	if len(snapshots) != 1 || len(snapshots[0]) != 0 {
		t.Fatalf("expected immediate empty snapshot, got %v", snapshots)
	}
	id := create(t, r, "u1", "A")
	create(t, r, "u2", "foreign")
	if len(snapshots) != 2 || len(snapshots[1]) != 1 || snapshots[1][0].Name != "A" {
		t.Fatalf("after create: %v", snapshots)
	}
	if err := r.UpdateTask(ctx, id, store.TaskFields{
		Name: "A2", Description: "d", Deadline: "2024-03-21", Status: domain.StatusPending,
	}); err != nil {
		t.Fatal(err)
	}
	if last := snapshots[len(snapshots)-1]; last[0].Name != "A2" {
		t.Fatalf("after update: %v", last)
	}

	count := len(snapshots)
	unsub()
	unsub() // idempotent
	create(t, r, "u1", "B")
	if len(snapshots) != count {
		t.Fatal("snapshot delivered after unsubscribe")
	}
}

func TestUpsertCompletionLog(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	snap := store.LogSnapshot{Name: "Task", Description: "d", Deadline: "2024-03-20"}

	if err := r.UpsertCompletionLog(ctx, "u1", "t1", "Fri Mar 15 2024", snap); err != nil {
		t.Fatal(err)
	}
	if err := r.UpsertCompletionLog(ctx, "u1", "t1", "Sat Mar 16 2024", snap); err != nil {
		t.Fatal(err)
	}
	// repeated day is a no-op merge
	if err := r.UpsertCompletionLog(ctx, "u1", "t1", "Sat Mar 16 2024", snap); err != nil {
		t.Fatal(err)
	}

	entry, err := r.GetCompletionLog(ctx, "u1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.ID != repo.LogKey("u1", "t1") {
		t.Fatalf("log key = %s", entry.ID)
	}
	if len(entry.Days) != 2 || !entry.Days["Fri Mar 15 2024"] || !entry.Days["Sat Mar 16 2024"] {
		t.Fatalf("days = %v", entry.Days)
	}
	if entry.Name != "Task" {
		t.Fatalf("snapshot = %+v", entry)
	}
}

func TestCompletionLogScopedByOwner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	snap := store.LogSnapshot{Name: "Task", Description: "d", Deadline: "2024-03-20"}
	if err := r.UpsertCompletionLog(ctx, "u1", "t1", "Fri Mar 15 2024", snap); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetCompletionLog(ctx, "u2", "t1"); err == nil {
		t.Fatal("expected not found for other owner")
	}
	entries, err := r.ListCompletionLogByOwner(ctx, "u1")
	if err != nil || len(entries) != 1 {
		t.Fatalf("list: %v %v", entries, err)
	}
}

func TestPruneResetTokens(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if err := r.InsertUser(ctx, domain.User{ID: "u1", Email: "a@b.co", PasswordHash: "x", CreatedAt: "2024-03-15T09:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	stale := domain.ResetToken{TokenHash: "stale", UserID: "u1", ExpiresAt: "2024-03-15T08:00:00Z"}
	live := domain.ResetToken{TokenHash: "live", UserID: "u1", ExpiresAt: "2024-03-15T10:00:00Z"}
	for _, tok := range []domain.ResetToken{stale, live} {
		if err := r.InsertResetToken(ctx, tok); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.PruneResetTokens(ctx, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := r.GetResetToken(ctx, "stale"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("stale token survived prune: %v", err)
	}
	if _, err := r.GetResetToken(ctx, "live"); err != nil {
		t.Fatalf("live token pruned: %v", err)
	}
}

func TestDeleteTaskKeepsCompletionLog(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	id := create(t, r, "u1", "Done soon")
	if err := r.UpsertCompletionLog(ctx, "u1", id, "Fri Mar 15 2024", store.LogSnapshot{Name: "Done soon"}); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteTask(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetCompletionLog(ctx, "u1", id); err != nil {
		t.Fatalf("log gone after delete: %v", err)
	}
}
