package screening

import (
	"context"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/chat"
	"github.com/meditech-nic/backend/internal/logger"
	"github.com/meditech-nic/backend/internal/models"
	"github.com/meditech-nic/backend/internal/profile"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&profile.Allergy{}, &profile.UserAllergy{},
		&chat.Conversation{}, &chat.Message{},
		&Recommendation{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fixture: a user with a conversation and, optionally, an active Penicillin
// allergy.
func setupScreeningFixture(t *testing.T, db *gorm.DB, allergic bool) (uint64, uint64) {
	t.Helper()
	ctx := context.Background()

	u := models.User{FirstName: "Local", LastName: "User"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	conv, err := chat.NewRepo(db, logger.NewNop()).StartConversation(ctx, u.ID, "")
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	if allergic {
		a := profile.Allergy{Name: "Penicillin", Type: "medication"}
		if err := db.Create(&a).Error; err != nil {
			t.Fatalf("create allergy: %v", err)
		}
		if err := profile.NewRepo(db, logger.NewNop()).SetAllergy(ctx, u.ID, a.ID, true); err != nil {
			t.Fatalf("activate allergy: %v", err)
		}
	}
	return u.ID, conv.ID
}

func TestScreen_BlocksPenicillinClassForAllergicUser(t *testing.T) {
	db := openTestDB(t)
	uid, convID := setupScreeningFixture(t, db, true)
	svc := NewService(db, logger.NewNop())

	decision, err := svc.Screen(context.Background(), convID, uid, "Amoxicillin 500mg", "")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if !decision.Blocked {
		t.Fatalf("expected suggestion to be blocked")
	}
	if decision.Reason != "Penicillin allergy" {
		t.Fatalf("unexpected reason: %q", decision.Reason)
	}

	var recs []Recommendation
	if err := db.Where("conversation_id = ?", convID).Find(&recs).Error; err != nil {
		t.Fatalf("load recommendations: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly 1 recommendation, got %d", len(recs))
	}
	r := recs[0]
	if r.Severity != SeverityHigh || r.Action != ActionProhibit || r.Source != SourceLocalRule {
		t.Fatalf("unexpected audit row: severity=%q action=%q source=%q", r.Severity, r.Action, r.Source)
	}
}

func TestScreen_AllowsWithoutMatchingAllergy(t *testing.T) {
	db := openTestDB(t)
	uid, convID := setupScreeningFixture(t, db, false)
	svc := NewService(db, logger.NewNop())

	decision, err := svc.Screen(context.Background(), convID, uid, "Amoxicillin", "Assistant suggestion: Amoxicillin")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if decision.Blocked {
		t.Fatalf("expected suggestion to pass")
	}

	var recs []Recommendation
	if err := db.Where("conversation_id = ?", convID).Find(&recs).Error; err != nil {
		t.Fatalf("load recommendations: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly 1 recommendation, got %d", len(recs))
	}
	r := recs[0]
	if r.Severity != SeverityLow || r.Action != ActionMonitor {
		t.Fatalf("unexpected audit row: severity=%q action=%q", r.Severity, r.Action)
	}
	if r.Description != "Assistant suggestion: Amoxicillin" {
		t.Fatalf("unexpected description: %q", r.Description)
	}
}

func TestScreen_MatchIsCaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	uid, convID := setupScreeningFixture(t, db, true)
	svc := NewService(db, logger.NewNop())

	decision, err := svc.Screen(context.Background(), convID, uid, "AMOXICILINA", "")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if !decision.Blocked {
		t.Fatalf("expected uppercase name to match the rule")
	}
}

func TestScreen_CustomRuleTable(t *testing.T) {
	db := openTestDB(t)
	uid, convID := setupScreeningFixture(t, db, false)
	ctx := context.Background()

	a := profile.Allergy{Name: "Metamizole", Type: "medication"}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("create allergy: %v", err)
	}
	if err := profile.NewRepo(db, logger.NewNop()).SetAllergy(ctx, uid, a.ID, true); err != nil {
		t.Fatalf("activate allergy: %v", err)
	}

	rules := []Rule{{Substring: "metamizol", AllergyName: "Metamizole", Reason: "Metamizole allergy"}}
	svc := NewServiceWithRules(db, rules, logger.NewNop())

	decision, err := svc.Screen(ctx, convID, uid, "Metamizol 500mg", "")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if !decision.Blocked || decision.Reason != "Metamizole allergy" {
		t.Fatalf("expected custom rule to block, got %+v", decision)
	}

	// the shipped rules are not consulted when a custom table is injected
	decision, err = svc.Screen(ctx, convID, uid, "Amoxicillin", "")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if decision.Blocked {
		t.Fatalf("expected default rules to be replaced, got %+v", decision)
	}
}

func TestDeleteConversation_RemovesRecommendations(t *testing.T) {
	db := openTestDB(t)
	uid, convID := setupScreeningFixture(t, db, true)
	ctx := context.Background()
	svc := NewService(db, logger.NewNop())

	decision, err := svc.Screen(ctx, convID, uid, "Amoxicillin", "")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if !decision.Blocked {
		t.Fatalf("expected suggestion to be blocked")
	}

	var before int64
	if err := db.Model(&Recommendation{}).Where("conversation_id = ?", convID).Count(&before).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if before != 1 {
		t.Fatalf("expected 1 recommendation before delete, got %d", before)
	}

	if err := chat.NewRepo(db, logger.NewNop()).DeleteConversation(ctx, convID); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}

	var after int64
	if err := db.Model(&Recommendation{}).Where("conversation_id = ?", convID).Count(&after).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if after != 0 {
		t.Fatalf("expected 0 orphan recommendations, got %d", after)
	}
}

func TestScreen_RequiresConversationAndUser(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, logger.NewNop())

	if _, err := svc.Screen(context.Background(), 0, 1, "Ibuprofen", ""); err != ErrMissingConversationID {
		t.Fatalf("expected ErrMissingConversationID, got %v", err)
	}
	if _, err := svc.Screen(context.Background(), 1, 0, "Ibuprofen", ""); err != ErrMissingUserID {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}

	var count int64
	if err := db.Model(&Recommendation{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("precondition failures must not write audit rows, got %d", count)
	}
}
