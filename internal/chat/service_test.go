package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/ai"
	"github.com/meditech-nic/backend/internal/logger"
	"github.com/meditech-nic/backend/internal/models"
	"github.com/meditech-nic/backend/internal/profile"
)

type recordingProvider struct {
	last       []ai.Message
	lastCtx    string
	reply      ai.Reply
	forcedErr  error
	callsCount int
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message, patientContext string) (ai.Reply, error) {
	_ = ctx
	p.callsCount++
	// copy to avoid mutations
	p.last = append([]ai.Message(nil), messages...)
	p.lastCtx = patientContext
	if p.forcedErr != nil {
		return ai.Reply{}, p.forcedErr
	}
	return p.reply, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&profile.Allergy{}, &profile.Condition{},
		&profile.UserAllergy{}, &profile.UserCondition{},
		&Conversation{}, &Message{}, &Job{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type noopScreener struct{}

func (noopScreener) Screen(ctx context.Context, conversationID, userID uint64, medication, description string) (ScreenDecision, error) {
	return ScreenDecision{}, nil
}

func newTestService(t *testing.T, db *gorm.DB, prov *recordingProvider) *Service {
	t.Helper()
	log := logger.NewNop()
	repo := NewRepo(db, log)
	profiles := profile.NewRepo(db, log)

	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		_ = model
		return prov, nil
	})
	return NewService(repo, profiles, reg, noopScreener{}, "fake", "default", 20, log)
}

func createTestUser(t *testing.T, db *gorm.DB) uint64 {
	t.Helper()
	u := models.User{FirstName: "Local", LastName: "User"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func TestSendMessage_WritesUserAndAssistant(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: ai.Reply{Text: "ok"}}
	svc := newTestService(t, db, prov)
	uid := createTestUser(t, db)

	res, err := svc.SendMessage(context.Background(), uid, 0, "Hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if res.Reply != "ok" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if res.ConversationID == 0 {
		t.Fatalf("expected a conversation to be started")
	}
	if res.AssistantMessageID == 0 {
		t.Fatalf("expected assistant message id to be set")
	}

	var msgs []Message
	if err := db.Where("conversation_id = ?", res.ConversationID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "Hello" {
		t.Fatalf("unexpected user msg: role=%q content=%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "ok" {
		t.Fatalf("unexpected assistant msg: role=%q content=%q", msgs[1].Role, msgs[1].Content)
	}
}

func TestSendMessage_UsesContextWindow(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: ai.Reply{Text: "ok"}}
	log := logger.NewNop()
	repo := NewRepo(db, log)
	profiles := profile.NewRepo(db, log)

	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		_ = model
		return prov, nil
	})

	window := 3
	svc := NewService(repo, profiles, reg, noopScreener{}, "fake", "default", window, log)
	uid := createTestUser(t, db)

	conv, err := repo.StartConversation(context.Background(), uid, "")
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := repo.AddMessage(context.Background(), conv.ID, role, "seed"); err != nil {
			t.Fatalf("seed msg %d: %v", i, err)
		}
	}

	if _, err := svc.SendMessage(context.Background(), uid, conv.ID, "new"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	if len(prov.last) != window {
		t.Fatalf("expected provider to receive %d messages, got %d", window, len(prov.last))
	}
	last := prov.last[len(prov.last)-1]
	if last.Role != RoleUser || last.Content != "new" {
		t.Fatalf("expected last provider msg to be new user msg, got role=%q content=%q", last.Role, last.Content)
	}
}

func TestSendMessage_IncludesAllergyContext(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: ai.Reply{Text: "ok"}}
	svc := newTestService(t, db, prov)
	uid := createTestUser(t, db)

	a := profile.Allergy{Name: "Penicillin", Type: "medication"}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("create allergy: %v", err)
	}
	profiles := profile.NewRepo(db, logger.NewNop())
	if err := profiles.SetAllergy(context.Background(), uid, a.ID, true); err != nil {
		t.Fatalf("set allergy: %v", err)
	}

	if _, err := svc.SendMessage(context.Background(), uid, 0, "hi"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if prov.lastCtx != "Active allergies: Penicillin (medication)" {
		t.Fatalf("unexpected patient context: %q", prov.lastCtx)
	}
}

func TestSendMessage_FallbackOnProviderError(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{forcedErr: errors.New("boom")}
	svc := newTestService(t, db, prov)
	uid := createTestUser(t, db)

	res, err := svc.SendMessage(context.Background(), uid, 0, "hi")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if res.Reply != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", res.Reply)
	}

	var msg Message
	if err := db.First(&msg, res.AssistantMessageID).Error; err != nil {
		t.Fatalf("load assistant msg: %v", err)
	}
	if msg.Content != FallbackReply {
		t.Fatalf("expected fallback to be persisted, got %q", msg.Content)
	}
}

func TestSendMessage_RejectsForeignConversation(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: ai.Reply{Text: "ok"}}
	svc := newTestService(t, db, prov)
	owner := createTestUser(t, db)
	intruder := createTestUser(t, db)

	res, err := svc.SendMessage(context.Background(), owner, 0, "mine")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}

	_, err = svc.SendMessage(context.Background(), intruder, res.ConversationID, "not mine")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found for foreign conversation, got %v", err)
	}
}

func TestListConversations_SkipsEmptyOnes(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: ai.Reply{Text: "ok"}}
	svc := newTestService(t, db, prov)
	uid := createTestUser(t, db)

	// abandoned: started but no user message ever sent
	if _, err := svc.StartConversation(context.Background(), uid, "abandoned"); err != nil {
		t.Fatalf("start conversation: %v", err)
	}

	res, err := svc.SendMessage(context.Background(), uid, 0, "hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}

	convs, err := svc.ListConversations(context.Background(), uid)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 listed conversation, got %d", len(convs))
	}
	if convs[0].ID != res.ConversationID {
		t.Fatalf("expected conversation %d, got %d", res.ConversationID, convs[0].ID)
	}
}

func TestDeleteConversation_CascadesToMessages(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: ai.Reply{Text: "ok"}}
	svc := newTestService(t, db, prov)
	uid := createTestUser(t, db)

	res, err := svc.SendMessage(context.Background(), uid, 0, "hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}

	if err := svc.DeleteConversation(context.Background(), uid, res.ConversationID); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}

	var count int64
	if err := db.Model(&Message{}).Where("conversation_id = ?", res.ConversationID).Count(&count).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 orphan messages, got %d", count)
	}
}

func TestCreateJobOrGetExisting_Idempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, logger.NewNop())
	uid := createTestUser(t, db)

	conv, err := repo.StartConversation(context.Background(), uid, "")
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}

	key := "retry-key-1"
	first := &Job{ID: "01TESTJOB00000000000000000", UserID: uid, ConversationID: conv.ID, IdempotencyKey: &key, Status: JobQueued}
	j1, created, err := repo.CreateJobOrGetExisting(context.Background(), first)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	second := &Job{ID: "01TESTJOB00000000000000001", UserID: uid, ConversationID: conv.ID, IdempotencyKey: &key, Status: JobQueued}
	j2, created, err := repo.CreateJobOrGetExisting(context.Background(), second)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("expected second call to reuse the existing job")
	}
	if j1.ID != j2.ID {
		t.Fatalf("expected same job id, got %q and %q", j1.ID, j2.ID)
	}
}
