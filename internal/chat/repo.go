package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/logger"
)

// Precondition failures happen before any store mutation.
var (
	ErrMissingUserID         = errors.New("chat: user id required")
	ErrMissingConversationID = errors.New("chat: conversation id required")
	ErrMissingRole           = errors.New("chat: role required")
	ErrInvalidRole           = errors.New("chat: role must be user or assistant")
)

const defaultReason = "consultation"

type Repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, log *logger.Logger) *Repo {
	return &Repo{db: db, log: log.With("repo", "chat")}
}

func (r *Repo) StartConversation(ctx context.Context, userID uint64, reason string) (*Conversation, error) {
	if userID == 0 {
		return nil, ErrMissingUserID
	}
	if reason == "" {
		reason = defaultReason
	}
	conv := &Conversation{
		UserID: userID,
		Reason: reason,
		Status: StatusOpen,
	}
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *Repo) GetConversation(ctx context.Context, id uint64) (*Conversation, error) {
	if id == 0 {
		return nil, ErrMissingConversationID
	}
	var conv Conversation
	if err := r.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// AddMessage appends to the conversation log. A nil-ish content is stored as
// the empty string rather than rejected.
func (r *Repo) AddMessage(ctx context.Context, conversationID uint64, role, content string) (*Message, error) {
	if conversationID == 0 {
		return nil, ErrMissingConversationID
	}
	if role == "" {
		return nil, ErrMissingRole
	}
	if role != RoleUser && role != RoleAssistant {
		return nil, ErrInvalidRole
	}
	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the whole conversation in insertion order.
func (r *Repo) ListMessages(ctx context.Context, conversationID uint64) ([]Message, error) {
	if conversationID == 0 {
		return nil, ErrMissingConversationID
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessagesDesc returns the most recent messages newest first, used
// to build the provider context window.
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, conversationID uint64, limit int) ([]Message, error) {
	if conversationID == 0 {
		return nil, ErrMissingConversationID
	}
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListConversations returns the user's history, newest first, restricted to
// conversations holding at least one user-authored message. Abandoned empty
// sessions stay in the store but never surface here.
func (r *Repo) ListConversations(ctx context.Context, userID uint64) ([]Conversation, error) {
	if userID == 0 {
		return nil, ErrMissingUserID
	}
	var convs []Conversation
	err := r.db.WithContext(ctx).
		Where(`user_id = ? AND EXISTS (
			SELECT 1 FROM messages m
			 WHERE m.conversation_id = conversations.id AND m.role = ?
		)`, userID, RoleUser).
		Order("id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// DeleteConversation removes the conversation and, through FK cascades, all
// its messages and recommendations. Irreversible; callers confirm first.
func (r *Repo) DeleteConversation(ctx context.Context, conversationID uint64) error {
	if conversationID == 0 {
		return ErrMissingConversationID
	}
	return r.db.WithContext(ctx).Delete(&Conversation{}, conversationID).Error
}

// Job CRUD
func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
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

func (r *Repo) GetJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if (user_id,
// idempotency_key) already exists it returns the existing job instead.
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

	existing, getErr := r.GetJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
