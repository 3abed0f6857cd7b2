package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/chat"
	"github.com/meditech-nic/backend/internal/logger"
	"github.com/meditech-nic/backend/internal/profile"
)

var (
	ErrMissingConversationID = errors.New("screening: conversation id required")
	ErrMissingUserID         = errors.New("screening: user id required")
)

// Service screens assistant medication suggestions against the user's
// active allergies. Every invocation writes exactly one Recommendation row:
// the engine is a safety gate and an audit log at once.
type Service struct {
	db    *gorm.DB
	rules []Rule
	log   *logger.Logger
}

func NewService(db *gorm.DB, log *logger.Logger) *Service {
	return &Service{db: db, rules: defaultRules, log: log.With("service", "screening")}
}

// NewServiceWithRules exists for tests and future rule-set injection.
func NewServiceWithRules(db *gorm.DB, rules []Rule, log *logger.Logger) *Service {
	return &Service{db: db, rules: rules, log: log.With("service", "screening")}
}

// Screen checks the medication name against the rule table and the user's
// active allergies. The allergy lookup and the audit write share one
// transaction so a crash can never record a decision it did not make.
func (s *Service) Screen(ctx context.Context, conversationID, userID uint64, medication, description string) (chat.ScreenDecision, error) {
	if conversationID == 0 {
		return chat.ScreenDecision{}, ErrMissingConversationID
	}
	if userID == 0 {
		return chat.ScreenDecision{}, ErrMissingUserID
	}

	medication = strings.TrimSpace(medication)
	lower := strings.ToLower(medication)

	var decision chat.ScreenDecision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profiles := profile.NewRepo(tx, s.log)

		var reason string
		for _, rule := range s.rules {
			if !strings.Contains(lower, rule.Substring) {
				continue
			}
			has, err := profiles.HasActiveAllergy(ctx, userID, rule.AllergyName)
			if err != nil {
				return err
			}
			if has {
				reason = rule.Reason
				break
			}
		}

		rec := Recommendation{
			ConversationID: conversationID,
			UserID:         userID,
			Source:         SourceLocalRule,
		}
		if reason != "" {
			rec.Severity = SeverityHigh
			rec.Action = ActionProhibit
			rec.Description = fmt.Sprintf("Blocked: %s. Reason: %s", medication, reason)
			decision = chat.ScreenDecision{Blocked: true, Reason: reason}
		} else {
			rec.Severity = SeverityLow
			rec.Action = ActionMonitor
			rec.Description = description
			if rec.Description == "" {
				rec.Description = fmt.Sprintf("Suggestion: %s", medication)
			}
			decision = chat.ScreenDecision{}
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return chat.ScreenDecision{}, err
	}

	if decision.Blocked {
		s.log.Info("medication blocked", "medication", medication, "reason", decision.Reason, "conversation_id", conversationID)
	}
	return decision, nil
}

// ListByConversation returns the audit trail for one conversation, oldest
// first.
func (s *Service) ListByConversation(ctx context.Context, conversationID uint64) ([]Recommendation, error) {
	if conversationID == 0 {
		return nil, ErrMissingConversationID
	}
	var recs []Recommendation
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
