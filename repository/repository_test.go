package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/askmira/backend/models"
	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *GORMRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying database: %v", err)
	}
	// A single connection keeps every query on the same in-memory
	// database and serializes concurrent transactions.
	sqlDB.SetMaxOpenConns(1)

	repo := NewGORMRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func activeSessionCount(t *testing.T, repo *GORMRepository) int {
	t.Helper()
	var count int64
	if err := repo.db.Model(&models.ChatSession{}).Where("is_active = ?", true).Count(&count).Error; err != nil {
		t.Fatalf("count active sessions: %v", err)
	}
	return int(count)
}

func TestCompleteCVAnalysisTransitionsOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	analysis := &models.CVAnalysis{FileName: "cv.pdf", Status: models.CVStatusProcessing}
	if err := repo.CreateCVAnalysis(ctx, analysis); err != nil {
		t.Fatalf("create analysis: %v", err)
	}

	payload := datatypes.JSON([]byte(`{"score":80}`))
	done, err := repo.CompleteCVAnalysis(ctx, analysis.ID, payload, "/audio/a.mp3")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done {
		t.Fatal("first CompleteCVAnalysis() did not transition the row")
	}

	// A redelivered job must not overwrite the terminal status.
	failed, err := repo.FailCVAnalysis(ctx, analysis.ID, "late failure")
	if err != nil {
		t.Fatalf("fail after complete: %v", err)
	}
	if failed {
		t.Fatal("FailCVAnalysis() transitioned a completed row")
	}
	done, err = repo.CompleteCVAnalysis(ctx, analysis.ID, payload, "/audio/b.mp3")
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if done {
		t.Fatal("second CompleteCVAnalysis() transitioned the row again")
	}

	row, err := repo.GetCVAnalysisByID(ctx, analysis.ID)
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if row.Status != models.CVStatusCompleted {
		t.Fatalf("Status = %q, want %q", row.Status, models.CVStatusCompleted)
	}
	if row.ErrorMessage != "" {
		t.Fatalf("ErrorMessage = %q, want empty on a completed row", row.ErrorMessage)
	}
	if row.AudioURL != "/audio/a.mp3" {
		t.Fatalf("AudioURL = %q, want the first completion's URL", row.AudioURL)
	}
}

func TestFailCVAnalysisTransitionsOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	analysis := &models.CVAnalysis{FileName: "cv.pdf", Status: models.CVStatusProcessing}
	if err := repo.CreateCVAnalysis(ctx, analysis); err != nil {
		t.Fatalf("create analysis: %v", err)
	}

	failed, err := repo.FailCVAnalysis(ctx, analysis.ID, "no text")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if !failed {
		t.Fatal("FailCVAnalysis() did not transition the row")
	}

	done, err := repo.CompleteCVAnalysis(ctx, analysis.ID, datatypes.JSON([]byte(`{}`)), "")
	if err != nil {
		t.Fatalf("complete after fail: %v", err)
	}
	if done {
		t.Fatal("CompleteCVAnalysis() transitioned a failed row")
	}

	row, err := repo.GetCVAnalysisByID(ctx, analysis.ID)
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if row.Status != models.CVStatusFailed || row.ErrorMessage != "no text" {
		t.Fatalf("row = %q/%q, want failed with its reason", row.Status, row.ErrorMessage)
	}
}

func TestSetCVAnalysisTextSkipsTerminalRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	analysis := &models.CVAnalysis{FileName: "cv.pdf", Status: models.CVStatusProcessing}
	if err := repo.CreateCVAnalysis(ctx, analysis); err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	if _, err := repo.FailCVAnalysis(ctx, analysis.ID, "gone"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if err := repo.SetCVAnalysisText(ctx, analysis.ID, "late text"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	row, err := repo.GetCVAnalysisByID(ctx, analysis.ID)
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if row.ExtractedText != "" {
		t.Fatalf("ExtractedText = %q, want untouched terminal row", row.ExtractedText)
	}
}

func TestCreateChatSessionLeavesOneActive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var last *models.ChatSession
	for i := 0; i < 3; i++ {
		session := &models.ChatSession{Title: fmt.Sprintf("session %d", i)}
		if err := repo.CreateChatSession(ctx, session); err != nil {
			t.Fatalf("create session %d: %v", i, err)
		}
		last = session
	}

	if count := activeSessionCount(t, repo); count != 1 {
		t.Fatalf("active sessions = %d, want 1", count)
	}
	active, err := repo.GetActiveChatSession(ctx)
	if err != nil {
		t.Fatalf("get active session: %v", err)
	}
	if active == nil || active.ID != last.ID {
		t.Fatalf("active session = %+v, want the newest one %s", active, last.ID)
	}
}

func TestActivateChatSessionSwapsActive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := &models.ChatSession{Title: "first"}
	second := &models.ChatSession{Title: "second"}
	for _, s := range []*models.ChatSession{first, second} {
		if err := repo.CreateChatSession(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	activated, err := repo.ActivateChatSession(ctx, first.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated == nil || !activated.IsActive {
		t.Fatalf("activated = %+v, want the first session active", activated)
	}

	if count := activeSessionCount(t, repo); count != 1 {
		t.Fatalf("active sessions = %d, want 1", count)
	}
	active, err := repo.GetActiveChatSession(ctx)
	if err != nil {
		t.Fatalf("get active session: %v", err)
	}
	if active.ID != first.ID {
		t.Fatalf("active session = %s, want %s", active.ID, first.ID)
	}

	missing, err := repo.ActivateChatSession(ctx, "00000000-0000-0000-0000-000000000000")
	if err != nil || missing != nil {
		t.Fatalf("ActivateChatSession(missing) = %v, %v, want nil, nil", missing, err)
	}
}

func TestConcurrentActivationsLeaveOneActive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	sessions := make([]*models.ChatSession, 3)
	for i := range sessions {
		sessions[i] = &models.ChatSession{Title: fmt.Sprintf("session %d", i)}
		if err := repo.CreateChatSession(ctx, sessions[i]); err != nil {
			t.Fatalf("create session %d: %v", i, err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.ActivateChatSession(ctx, sessions[i%len(sessions)].ID); err != nil {
				t.Errorf("activate: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if count := activeSessionCount(t, repo); count != 1 {
		t.Fatalf("active sessions after concurrent activations = %d, want 1", count)
	}
}

func TestAddSessionMessageUpdatesParent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	session := &models.ChatSession{Title: "notes"}
	if err := repo.CreateChatSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	first := &models.SessionMessage{
		SessionID:   session.ID,
		Role:        models.RoleUser,
		Content:     "hello",
		MessageType: models.MessageTypeText,
	}
	if err := repo.AddSessionMessage(ctx, first); err != nil {
		t.Fatalf("add first message: %v", err)
	}

	longContent := strings.Repeat("é", 150)
	second := &models.SessionMessage{
		SessionID:   session.ID,
		Role:        models.RoleAssistant,
		Content:     longContent,
		MessageType: models.MessageTypeText,
	}
	if err := repo.AddSessionMessage(ctx, second); err != nil {
		t.Fatalf("add second message: %v", err)
	}

	got, err := repo.GetChatSessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.MessageCount != 2 {
		t.Fatalf("MessageCount = %d, want 2", got.MessageCount)
	}
	if got.LastMessage != models.LastMessagePreview(longContent) {
		t.Fatalf("LastMessage = %q, want the 100-rune preview", got.LastMessage)
	}
	if n := len([]rune(got.LastMessage)); n != 100 {
		t.Fatalf("LastMessage length = %d runes, want 100", n)
	}
}

func TestAddSessionMessageMissingSession(t *testing.T) {
	repo := newTestRepo(t)

	message := &models.SessionMessage{
		SessionID:   "00000000-0000-0000-0000-000000000000",
		Role:        models.RoleUser,
		Content:     "orphan",
		MessageType: models.MessageTypeText,
	}
	err := repo.AddSessionMessage(context.Background(), message)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("AddSessionMessage(missing session) = %v, want gorm.ErrRecordNotFound", err)
	}
}

func TestSessionMessagesInsertionOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	session := &models.ChatSession{Title: "ordered"}
	if err := repo.CreateChatSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		message := &models.SessionMessage{
			SessionID:   session.ID,
			Role:        models.RoleUser,
			Content:     fmt.Sprintf("message %d", i),
			MessageType: models.MessageTypeText,
			CreatedAt:   base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := repo.AddSessionMessage(ctx, message); err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
	}

	messages, err := repo.GetSessionMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("len(messages) = %d, want 5", len(messages))
	}
	for i, message := range messages {
		if want := fmt.Sprintf("message %d", i); message.Content != want {
			t.Fatalf("messages[%d].Content = %q, want %q", i, message.Content, want)
		}
	}

	// The preloaded fetch reproduces the same order.
	got, err := repo.GetChatSessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	for i, message := range got.Messages {
		if want := fmt.Sprintf("message %d", i); message.Content != want {
			t.Fatalf("preloaded Messages[%d].Content = %q, want %q", i, message.Content, want)
		}
	}
}

func TestUpdateAndDeleteUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	email := "mira@example.com"
	user := &models.User{Email: &email, FullName: "Before", Provider: models.ProviderEmail}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	user.FullName = "After"
	if err := repo.UpdateUser(ctx, user); err != nil {
		t.Fatalf("update user: %v", err)
	}
	got, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.FullName != "After" {
		t.Fatalf("FullName = %q, want %q", got.FullName, "After")
	}

	if err := repo.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	got, err = repo.GetUserByID(ctx, user.ID)
	if err != nil || got != nil {
		t.Fatalf("GetUserByID(deleted) = %v, %v, want nil, nil", got, err)
	}
	got, err = repo.GetUserByEmail(ctx, email)
	if err != nil || got != nil {
		t.Fatalf("GetUserByEmail(deleted) = %v, %v, want nil, nil", got, err)
	}
}

func TestReclaimStaleVoiceSessions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stale := &models.VoiceSession{
		Token:        "stale-token",
		Status:       models.VoiceStatusActive,
		LastActivity: time.Now().Add(-10 * time.Minute),
	}
	fresh := &models.VoiceSession{
		Token:        "fresh-token",
		Status:       models.VoiceStatusActive,
		LastActivity: time.Now(),
	}
	for _, s := range []*models.VoiceSession{stale, fresh} {
		if err := repo.CreateVoiceSession(ctx, s); err != nil {
			t.Fatalf("create voice session: %v", err)
		}
	}

	reclaimed, err := repo.ReclaimStaleVoiceSessions(ctx, time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	got, err := repo.GetVoiceSessionByToken(ctx, "stale-token")
	if err != nil {
		t.Fatalf("get stale session: %v", err)
	}
	if got.Status != models.VoiceStatusInactive {
		t.Fatalf("stale session status = %q, want %q", got.Status, models.VoiceStatusInactive)
	}
	got, err = repo.GetVoiceSessionByToken(ctx, "fresh-token")
	if err != nil {
		t.Fatalf("get fresh session: %v", err)
	}
	if got.Status != models.VoiceStatusActive {
		t.Fatalf("fresh session status = %q, want %q", got.Status, models.VoiceStatusActive)
	}
}
