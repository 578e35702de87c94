package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/appgen/internal/ai"
	"github.com/suPer8Hu/appgen/internal/common"
	"gorm.io/gorm"
)

// appendRetries bounds retries when two appends race for the same position.
const appendRetries = 5

// Repo is the conversation store.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

func chatExists(tx *gorm.DB, chatID string) error {
	var n int64
	if err := tx.Model(&Chat{}).Where("id = ?", chatID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (r *Repo) CreateChat(ctx context.Context, c *Chat) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetChat(ctx context.Context, id string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrChatNotFound)
	}
	return &c, nil
}

// GetChatWithMessages loads a chat and its messages in position order.
func (r *Repo) GetChatWithMessages(ctx context.Context, id string) (*Chat, error) {
	var c Chat
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, ErrChatNotFound)
	}
	return &c, nil
}

// SeedConversation sets the chat title and writes the seed messages at
// positions 0..n-1 in one transaction. It returns the last seed message.
func (r *Repo) SeedConversation(ctx context.Context, chatID, title string, seed []ai.Message) (*Message, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty seed", ErrInvalidRequest)
	}
	msgs := make([]Message, 0, len(seed))
	for i, m := range seed {
		id, err := common.NewULID()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{ID: id, ChatID: chatID, Role: m.Role, Content: m.Content, Position: i})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := chatExists(tx, chatID); err != nil {
			return err
		}
		if err := tx.Model(&Chat{}).Where("id = ?", chatID).Update("title", title).Error; err != nil {
			return err
		}
		return tx.Create(&msgs).Error
	})
	if err != nil {
		return nil, err
	}
	return &msgs[len(msgs)-1], nil
}

// AppendMessage inserts a message at max(position)+1. The position is
// computed inside the insert transaction; a concurrent insert that takes the
// same slot trips the unique index and the append is retried.
func (r *Repo) AppendMessage(ctx context.Context, chatID, role, content string) (*Message, error) {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		id, err := common.NewULID()
		if err != nil {
			return nil, err
		}
		m := &Message{ID: id, ChatID: chatID, Role: role, Content: content}

		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := chatExists(tx, chatID); err != nil {
				return err
			}

			var maxPos sql.NullInt64
			if err := tx.Model(&Message{}).
				Where("chat_id = ?", chatID).
				Select("MAX(position)").
				Row().Scan(&maxPos); err != nil {
				return err
			}
			m.Position = 0
			if maxPos.Valid {
				m.Position = int(maxPos.Int64) + 1
			}
			return tx.Create(m).Error
		})
		if err == nil {
			return m, nil
		}
		if !isDuplicateKey(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("append message: position conflict after %d attempts: %w", appendRetries, lastErr)
}

func (r *Repo) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrMessageNotFound)
	}
	return &m, nil
}

// ListHistory returns the chat's messages up to and including position, in
// ascending position order.
func (r *Repo) ListHistory(ctx context.Context, chatID string, upTo int) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ? AND position <= ?", chatID, upTo).
		Order("position ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Job CRUD
func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrJobNotFound)
	}
	return &j, nil
}

// UpdateJobStatusRunning moves a queued job to running. It reports false when
// the job was not queued, e.g. a redelivered message for a finished job.
func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning)
	return res.RowsAffected > 0, res.Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

// RequeueJob puts a running job back to queued so a retry can claim it.
func (r *Repo) RequeueJob(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobRunning).
		Updates(map[string]any{
			"status": JobQueued,
			"error":  errMsg,
		}).Error
}

func (r *Repo) GetJobByIdempotencyKey(ctx context.Context, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&job).Error
	if err != nil {
		return nil, notFound(err, ErrJobNotFound)
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if idempotency_key already
// exists it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByIdempotencyKey(ctx, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, ErrJobNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
