package chat

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/ai"
	"github.com/meditech-nic/backend/internal/logger"
	"github.com/meditech-nic/backend/internal/profile"
)

// FallbackReply is returned whenever the assistant call fails. Assistant
// failures never surface as errors to the caller; the conversation keeps
// flowing.
const FallbackReply = "I couldn't respond right now. Please try again in a moment."

// ScreenDecision is the outcome of checking a suggested medication against
// the user's active allergies.
type ScreenDecision struct {
	Blocked bool
	Reason  string
}

// Screener gates assistant medication suggestions. Implemented by the
// screening package; every call writes one audit record.
type Screener interface {
	Screen(ctx context.Context, conversationID, userID uint64, medication, description string) (ScreenDecision, error)
}

type Service struct {
	repo              *Repo
	profiles          *profile.Repo
	registry          *ai.Registry
	screener          Screener
	providerName      string
	model             string
	contextWindowSize int
	log               *logger.Logger
}

func NewService(repo *Repo, profiles *profile.Repo, registry *ai.Registry, screener Screener, providerName, model string, contextWindowSize int, log *logger.Logger) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	return &Service{
		repo:              repo,
		profiles:          profiles,
		registry:          registry,
		screener:          screener,
		providerName:      providerName,
		model:             model,
		contextWindowSize: contextWindowSize,
		log:               log.With("service", "chat"),
	}
}

type SendResult struct {
	ConversationID      uint64  `json:"conversation_id"`
	Reply               string  `json:"reply"`
	AssistantMessageID  uint64  `json:"message_id"`
	SuggestedMedication *string `json:"suggested_medication,omitempty"`
	Blocked             bool    `json:"blocked"`
	BlockReason         string  `json:"block_reason,omitempty"`
}

// SendMessage runs one full chat turn: store the user message (starting the
// conversation lazily when conversationID is zero), ask the assistant with
// recent history plus the patient context, store the reply, and screen any
// suggested medication. A blocked suggestion appends a warning message.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID uint64, content string) (*SendResult, error) {
	if userID == 0 {
		return nil, ErrMissingUserID
	}
	content = strings.TrimSpace(content)

	if conversationID == 0 {
		conv, err := s.repo.StartConversation(ctx, userID, defaultReason)
		if err != nil {
			return nil, err
		}
		conversationID = conv.ID
	} else {
		if err := s.validateOwner(ctx, userID, conversationID); err != nil {
			return nil, err
		}
	}

	if _, err := s.repo.AddMessage(ctx, conversationID, RoleUser, content); err != nil {
		return nil, err
	}

	reply, assistantMsgID, suggestion, err := s.generateReply(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	result := &SendResult{
		ConversationID:      conversationID,
		Reply:               reply,
		AssistantMessageID:  assistantMsgID,
		SuggestedMedication: suggestion,
	}

	if suggestion != nil && *suggestion != "" {
		decision, err := s.screenSuggestion(ctx, userID, conversationID, *suggestion)
		if err != nil {
			return nil, err
		}
		result.Blocked = decision.Blocked
		result.BlockReason = decision.Reason
	}
	return result, nil
}

// GenerateAssistantReply produces and stores the assistant reply for a
// conversation whose user message was already persisted. Used by the worker.
func (s *Service) GenerateAssistantReply(ctx context.Context, userID, conversationID uint64) (string, uint64, error) {
	if err := s.validateOwner(ctx, userID, conversationID); err != nil {
		return "", 0, err
	}
	reply, msgID, suggestion, err := s.generateReply(ctx, userID, conversationID)
	if err != nil {
		return "", 0, err
	}
	if suggestion != nil && *suggestion != "" {
		if _, err := s.screenSuggestion(ctx, userID, conversationID, *suggestion); err != nil {
			return "", 0, err
		}
	}
	return reply, msgID, nil
}

func (s *Service) generateReply(ctx context.Context, userID, conversationID uint64) (string, uint64, *string, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, conversationID, s.contextWindowSize)
	if err != nil {
		return "", 0, nil, err
	}
	// reverse to ASC (oldest -> newest)
	history := make([]ai.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		history = append(history, ai.Message{Role: m.Role, Content: m.Content})
	}

	patientContext, err := s.patientContext(ctx, userID)
	if err != nil {
		return "", 0, nil, err
	}

	reply := FallbackReply
	var suggestion *string

	provider, err := s.registry.Get(ctx, s.providerName, s.model)
	if err != nil {
		s.log.Error("assistant provider unavailable", "provider", s.providerName, "error", err)
	} else {
		out, err := provider.Chat(ctx, history, patientContext)
		if err != nil {
			// External-service failures downgrade to the fixed fallback.
			s.log.Warn("assistant call failed, using fallback", "error", err)
		} else {
			if out.Text != "" {
				reply = out.Text
			}
			suggestion = out.SuggestedMedication
		}
	}

	msg, err := s.repo.AddMessage(ctx, conversationID, RoleAssistant, reply)
	if err != nil {
		return "", 0, nil, err
	}
	return reply, msg.ID, suggestion, nil
}

func (s *Service) screenSuggestion(ctx context.Context, userID, conversationID uint64, medication string) (ScreenDecision, error) {
	decision, err := s.screener.Screen(ctx, conversationID, userID, medication,
		fmt.Sprintf("Assistant suggestion: %s", medication))
	if err != nil {
		return ScreenDecision{}, err
	}
	if decision.Blocked {
		warning := fmt.Sprintf("I can't recommend %s because of a risk: %s.", medication, decision.Reason)
		if _, err := s.repo.AddMessage(ctx, conversationID, RoleAssistant, warning); err != nil {
			return ScreenDecision{}, err
		}
	}
	return decision, nil
}

// patientContext summarizes the active allergies for the assistant.
func (s *Service) patientContext(ctx context.Context, userID uint64) (string, error) {
	allergies, err := s.profiles.GetActiveAllergies(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(allergies) == 0 {
		return "No known allergies", nil
	}
	parts := make([]string, 0, len(allergies))
	for _, a := range allergies {
		typ := a.Type
		if typ == "" {
			typ = "n/a"
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", a.Name, typ))
	}
	return "Active allergies: " + strings.Join(parts, ", "), nil
}

func (s *Service) validateOwner(ctx context.Context, userID, conversationID uint64) error {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Service) StartConversation(ctx context.Context, userID uint64, reason string) (*Conversation, error) {
	return s.repo.StartConversation(ctx, userID, reason)
}

func (s *Service) ListMessages(ctx context.Context, userID, conversationID uint64) ([]Message, error) {
	if err := s.validateOwner(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

func (s *Service) ListConversations(ctx context.Context, userID uint64) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID uint64) error {
	if err := s.validateOwner(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.repo.DeleteConversation(ctx, conversationID)
}

// AddUserMessage persists a user message for the async flow; the assistant
// reply arrives later via the worker.
func (s *Service) AddUserMessage(ctx context.Context, userID, conversationID uint64, content string) (*Message, error) {
	if err := s.validateOwner(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.AddMessage(ctx, conversationID, RoleUser, strings.TrimSpace(content))
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}
