package chat

import "time"

type Quality string

const (
	QualityHigh Quality = "high"
	QualityLow  Quality = "low"
)

type Chat struct {
	ID            string    `gorm:"primaryKey;size:26" json:"id"`
	Prompt        string    `gorm:"type:text;not null" json:"prompt"`
	Title         string    `gorm:"type:varchar(255);not null" json:"title"`
	Model         string    `gorm:"type:varchar(128);not null" json:"model"`
	Quality       Quality   `gorm:"type:varchar(8);not null" json:"quality"`
	ScreenshotURL *string   `gorm:"type:text" json:"screenshot_url,omitempty"`
	Shadcn        bool      `gorm:"not null" json:"shadcn"`
	Messages      []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

// Message is one turn of a chat. Position orders the conversation and is
// unique per chat; messages are never updated after insert.
type Message struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	ChatID    string    `gorm:"size:26;not null;uniqueIndex:uniq_chat_msg_position,priority:1" json:"chat_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role" validate:"required,oneof=system user assistant"`
	Content   string    `gorm:"type:longtext;not null" json:"content"`
	Position  int       `gorm:"not null;uniqueIndex:uniq_chat_msg_position,priority:2" json:"position" validate:"gte=0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Message) TableName() string { return "chat_messages" }

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is a queued assistant completion for MessageID.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	ChatID    string `gorm:"size:26;index;not null"`
	MessageID string `gorm:"size:26;index;not null"`
	Model     string `gorm:"type:varchar(128);not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:uniq_job_idempo"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultMessageID *string `gorm:"size:26"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "completion_jobs" }

// Models lists every table this package owns, for migrations.
func Models() []any {
	return []any{&Chat{}, &Message{}, &Job{}}
}
