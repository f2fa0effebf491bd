package domain

const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
)

type Task struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Deadline    string  `json:"deadline" format:"date"`
	Status      string  `json:"status" enum:"Pending,Completed"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

// CompletionLogEntry is the audit record written when a task is completed.
// The snapshot fields are denormalized on purpose: they preserve the task
// as it looked at completion time, and survive later edits or deletion.
type CompletionLogEntry struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	TaskID      string          `json:"task_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Deadline    string          `json:"deadline" format:"date"`
	Days        map[string]bool `json:"days"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	UpdatedAt   string          `json:"updated_at" format:"date-time"`
}

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type ResetToken struct {
	TokenHash string `json:"token_hash"`
	UserID    string `json:"user_id"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
	Used      bool   `json:"used"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OwnerID    string `json:"owner_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
