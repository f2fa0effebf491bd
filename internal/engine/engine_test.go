package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/events"
	"taskline/internal/migrate"
	"taskline/internal/repo"
	"taskline/internal/store"
)

type testEnv struct {
	Engine engine.Engine
	Repo   *repo.Repo
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	r := repo.New(conn)
	r.Now = now
	eng := engine.New(r, events.Writer{DB: conn, Now: now}, config.Default())
	eng.Now = now
	return testEnv{Engine: eng, Repo: r, Ctx: context.Background()}
}

func mustCreate(t *testing.T, env testEnv, owner, name string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, owner, engine.TaskInput{
		Name:        name,
		Description: "desc for " + name,
		Deadline:    "2024-03-20",
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return task
}

func TestCreateTask(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, "u1", "Write report")
	if task.ID == "" {
		t.Fatal("expected assigned id")
	}
	if task.Status != domain.StatusPending {
		t.Fatalf("status = %s, want %s", task.Status, domain.StatusPending)
	}
	if task.CompletedAt != nil {
		t.Fatal("new task must not carry completed_at")
	}
	if task.CreatedAt != "2024-03-15T09:00:00Z" {
		t.Fatalf("created_at = %s", task.CreatedAt)
	}
}

func TestCreateTaskRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, "", engine.TaskInput{Name: "x", Description: "y", Deadline: "2024-03-20"})
	var authErr engine.AuthRequiredError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthRequiredError, got %v", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, "u1", engine.TaskInput{Deadline: "2024-01-01"})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected name, description and deadline errors, got %v", verr.Fields)
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	env := newTestEnv(t)
	mustCreate(t, env, "u1", "Buy milk")
	_, err := env.Engine.CreateTask(env.Ctx, "u1", engine.TaskInput{
		Name: "  BUY MILK ", Description: "again", Deadline: "2024-03-20",
	})
	var dup engine.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	// other owners are not affected
	if _, err := env.Engine.CreateTask(env.Ctx, "u2", engine.TaskInput{
		Name: "Buy milk", Description: "mine", Deadline: "2024-03-20",
	}); err != nil {
		t.Fatalf("cross-owner create: %v", err)
	}
}

func TestCompleteTask(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, "u1", "Ship release")
	done, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", done.Status)
	}
	if done.CompletedAt == nil || *done.CompletedAt != "2024-03-15T09:00:00Z" {
		t.Fatalf("completed_at = %v", done.CompletedAt)
	}
	entry, err := env.Engine.TaskHistory(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatalf("task history: %v", err)
	}
	if !entry.Days[engine.DayKey(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))] {
		t.Fatalf("day not logged: %v", entry.Days)
	}
	if entry.Name != "Ship release" {
		t.Fatalf("snapshot name = %s", entry.Name)
	}
}

func TestCompleteTaskIdempotent(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, "u1", "Once")
	first, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *first.CompletedAt != *second.CompletedAt {
		t.Fatalf("completed_at changed on repeat: %s vs %s", *first.CompletedAt, *second.CompletedAt)
	}
}

func TestCompleteAgainMergesNewDay(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, "u1", "Recurring")
	first, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC) }
	again, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *again.CompletedAt != *first.CompletedAt {
		t.Fatalf("completed_at changed on repeat: %s vs %s", *first.CompletedAt, *again.CompletedAt)
	}
	entry, err := env.Engine.TaskHistory(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entry.Days) != 2 {
		t.Fatalf("expected both days logged, got %v", entry.Days)
	}
	if !entry.Days[engine.DayKey(time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC))] {
		t.Fatalf("second day missing: %v", entry.Days)
	}
}

func TestMutationsSurviveAuditFailure(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Repo.DB.Exec(`DROP TABLE events`); err != nil {
		t.Fatalf("drop events: %v", err)
	}
	task := mustCreate(t, env, "u1", "Unlogged")
	done, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatalf("complete with broken audit log: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", done.Status)
	}
	entry, err := env.Engine.TaskHistory(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatalf("history missing: %v", err)
	}
	if len(entry.Days) != 1 {
		t.Fatalf("days = %v", entry.Days)
	}
	if err := env.Engine.DeleteTask(env.Ctx, "u1", task.ID); err != nil {
		t.Fatalf("delete with broken audit log: %v", err)
	}
}

func TestCompleteTaskWrongOwner(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, "u1", "Private")
	_, err := env.Engine.CompleteTask(env.Ctx, "u2", task.ID)
	var nf store.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestEditReopensCompletedTask(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, "u1", "Draft")
	if _, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID); err != nil {
		t.Fatal(err)
	}
	edited, err := env.Engine.EditTask(env.Ctx, "u1", task.ID, engine.TaskInput{
		Name: "Draft v2", Description: "rewritten", Deadline: "2024-03-25",
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Status != domain.StatusPending {
		t.Fatalf("status = %s, want %s", edited.Status, domain.StatusPending)
	}
	if edited.CompletedAt != nil {
		t.Fatal("completed_at must be cleared on edit")
	}
	if edited.Name != "Draft v2" {
		t.Fatalf("name = %s", edited.Name)
	}
}

func TestEditKeepsStatusWhenReopenDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Lifecycle.ReopenOnEdit = false
	task := mustCreate(t, env, "u1", "Stable")
	if _, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID); err != nil {
		t.Fatal(err)
	}
	edited, err := env.Engine.EditTask(env.Ctx, "u1", task.ID, engine.TaskInput{
		Name: "Stable", Description: "touched", Deadline: "2024-03-25",
	})
	if err != nil {
		t.Fatal(err)
	}
	if edited.Status != domain.StatusCompleted || edited.CompletedAt == nil {
		t.Fatalf("expected completion preserved, got %s / %v", edited.Status, edited.CompletedAt)
	}
}

func TestEditDuplicateCheckOptIn(t *testing.T) {
	env := newTestEnv(t)
	mustCreate(t, env, "u1", "First")
	second := mustCreate(t, env, "u1", "Second")

	// default: renaming over an existing name is allowed
	if _, err := env.Engine.EditTask(env.Ctx, "u1", second.ID, engine.TaskInput{
		Name: "First", Description: "d", Deadline: "2024-03-20",
	}); err != nil {
		t.Fatalf("edit without guard: %v", err)
	}

	env.Engine.Config.Lifecycle.DuplicateCheckOnEdit = true
	third := mustCreate(t, env, "u1", "Third")
	_, err := env.Engine.EditTask(env.Ctx, "u1", third.ID, engine.TaskInput{
		Name: "first", Description: "d", Deadline: "2024-03-20",
	})
	var dup engine.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	// editing a task without renaming never collides with itself
	if _, err := env.Engine.EditTask(env.Ctx, "u1", third.ID, engine.TaskInput{
		Name: "Third", Description: "still me", Deadline: "2024-03-21",
	}); err != nil {
		t.Fatalf("self edit: %v", err)
	}
}

func TestDeleteTaskKeepsHistory(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, "u1", "Ephemeral")
	if _, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, "u1", task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, "u1", task.ID); err == nil {
		t.Fatal("task should be gone")
	}
	entry, err := env.Engine.TaskHistory(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatalf("history after delete: %v", err)
	}
	if entry.Name != "Ephemeral" {
		t.Fatalf("snapshot lost: %+v", entry)
	}
}

func TestCompletionLogMergesDays(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, "u1", "Daily")
	if _, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID); err != nil {
		t.Fatal(err)
	}
	// reopen and complete again on another day
	if _, err := env.Engine.EditTask(env.Ctx, "u1", task.ID, engine.TaskInput{
		Name: "Daily", Description: "desc for Daily", Deadline: "2024-03-20",
	}); err != nil {
		t.Fatal(err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID); err != nil {
		t.Fatal(err)
	}
	entry, err := env.Engine.TaskHistory(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entry.Days) != 2 {
		t.Fatalf("expected two day buckets, got %v", entry.Days)
	}
}

func TestListTasksInsertionOrder(t *testing.T) {
	env := newTestEnv(t)
	mustCreate(t, env, "u1", "a")
	mustCreate(t, env, "u1", "b")
	mustCreate(t, env, "u2", "other")
	tasks, err := env.Engine.ListTasks(env.Ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].Name != "a" || tasks[1].Name != "b" {
		t.Fatalf("unexpected list: %+v", tasks)
	}
}
