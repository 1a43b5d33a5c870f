package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}, &Message{}, &ReplyJob{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, maxHistory int) (*Service, *Repo) {
	t.Helper()
	repo := NewRepo(openTestDB(t))
	return NewService(repo, maxHistory), repo
}

// seedSession creates a session with n messages "Message 0".."Message n-1",
// one hour apart, roles alternating user, model, user, model, ...
func seedSession(t *testing.T, svc *Service, chatID int64, n int) *Session {
	t.Helper()
	sess, err := svc.GetOrCreateSession(context.Background(), chatID)
	if err != nil {
		t.Fatalf("get-or-create session: %v", err)
	}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		_, err := svc.AppendMessage(context.Background(), sess.ID, fmt.Sprintf("Message %d", i), base.Add(time.Duration(i)*time.Hour), role)
		if err != nil {
			t.Fatalf("seed msg %d: %v", i, err)
		}
	}
	return sess
}

func TestGetOrCreateSession_Idempotent(t *testing.T) {
	svc, _ := newTestService(t, 20)

	first, err := svc.GetOrCreateSession(context.Background(), 1001)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.GetOrCreateSession(context.Background(), 1001)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same session id, got %d and %d", first.ID, second.ID)
	}

	other, err := svc.GetOrCreateSession(context.Background(), 1002)
	if err != nil {
		t.Fatalf("other chat: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("different chats must map to different sessions")
	}
}

func TestGetOrCreateSession_ReturnsRowCreatedElsewhere(t *testing.T) {
	svc, repo := newTestService(t, 20)

	// Another process won the creation race.
	winner := &Session{ChatID: 1003}
	if err := repo.CreateSession(context.Background(), winner); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := svc.GetOrCreateSession(context.Background(), 1003)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}
	if got.ID != winner.ID {
		t.Fatalf("expected existing session %d, got %d", winner.ID, got.ID)
	}
}

func TestFindSession_DoesNotCreate(t *testing.T) {
	svc, _ := newTestService(t, 20)

	if _, err := svc.FindSession(context.Background(), 1005); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	created, err := svc.GetOrCreateSession(context.Background(), 1005)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}

	found, err := svc.FindSession(context.Background(), 1005)
	if err != nil {
		t.Fatalf("find after create: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected session %d, got %d", created.ID, found.ID)
	}
}

func TestHistoryN_WindowKeepsMostRecentInChronologicalOrder(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess := seedSession(t, svc, 1010, 10)

	history, err := svc.HistoryN(context.Background(), sess.ID, 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(history))
	}
	for i, e := range history {
		n := 5 + i
		wantRole := RoleUser
		if n%2 == 1 {
			wantRole = RoleModel
		}
		if e.Content != fmt.Sprintf("Message %d", n) {
			t.Fatalf("entry %d: expected %q, got %q", i, fmt.Sprintf("Message %d", n), e.Content)
		}
		if e.Role != wantRole {
			t.Fatalf("entry %d: expected role %q, got %q", i, wantRole, e.Role)
		}
	}
}

func TestHistoryN_ReturnsMinOfStoredAndLimit(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess := seedSession(t, svc, 1011, 10)

	for _, tc := range []struct {
		limit int
		want  int
	}{
		{limit: 0, want: 0},
		{limit: 1, want: 1},
		{limit: 10, want: 10},
		{limit: 50, want: 10},
	} {
		history, err := svc.HistoryN(context.Background(), sess.ID, tc.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tc.limit, err)
		}
		if len(history) != tc.want {
			t.Fatalf("limit %d: expected %d entries, got %d", tc.limit, tc.want, len(history))
		}
	}
}

func TestHistoryN_LimitOneReturnsNewest(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess := seedSession(t, svc, 1012, 10)

	history, err := svc.HistoryN(context.Background(), sess.ID, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Content != "Message 9" {
		t.Fatalf("expected newest message, got %#v", history)
	}
}

func TestHistoryN_NegativeLimit(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess := seedSession(t, svc, 1013, 3)

	_, err := svc.HistoryN(context.Background(), sess.ID, -1)
	if !errors.Is(err, ErrNegativeLimit) {
		t.Fatalf("expected ErrNegativeLimit, got %v", err)
	}

	// The rejected call must leave no trace.
	history, err := svc.HistoryN(context.Background(), sess.ID, 10)
	if err != nil {
		t.Fatalf("history after rejection: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries untouched, got %d", len(history))
	}
}

func TestHistory_EmptySession(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess, err := svc.GetOrCreateSession(context.Background(), 1014)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}

	history, err := svc.History(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history))
	}
}

func TestHistory_UsesConfiguredDefaultWindow(t *testing.T) {
	svc, _ := newTestService(t, 4)
	sess := seedSession(t, svc, 1015, 10)

	history, err := svc.History(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected default window of 4, got %d", len(history))
	}
	if history[0].Content != "Message 6" || history[3].Content != "Message 9" {
		t.Fatalf("unexpected window: %#v", history)
	}
}

func TestHistoryN_OrdersByEventDateNotInsertionOrder(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess, err := svc.GetOrCreateSession(context.Background(), 1016)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	// Inserted newest-first: delivery order disagrees with event order.
	for _, offset := range []int{3, 1, 2, 0} {
		_, err := svc.AppendMessage(context.Background(), sess.ID, fmt.Sprintf("turn %d", offset), base.Add(time.Duration(offset)*time.Minute), RoleUser)
		if err != nil {
			t.Fatalf("append turn %d: %v", offset, err)
		}
	}

	history, err := svc.HistoryN(context.Background(), sess.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []string{"turn 0", "turn 1", "turn 2", "turn 3"}
	for i, e := range history {
		if e.Content != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], e.Content)
		}
	}
}

func TestAppendMessage_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess, err := svc.GetOrCreateSession(context.Background(), 1017)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}

	content := "Ciao! 42°F — \"naïve\" multi\nline"
	date := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	m, err := svc.AppendMessage(context.Background(), sess.ID, content, date, RoleModel)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if m.ID == 0 {
		t.Fatalf("expected assigned message id")
	}
	if m.Content != content || m.Role != RoleModel {
		t.Fatalf("unexpected message: %#v", m)
	}

	history, err := svc.HistoryN(context.Background(), sess.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(history))
	}
	if history[0].Role != RoleModel || history[0].Content != content {
		t.Fatalf("round trip mismatch: %#v", history[0])
	}
}

func TestAppendMessage_EmptyContentAllowed(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess, err := svc.GetOrCreateSession(context.Background(), 1018)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}

	if _, err := svc.AppendMessage(context.Background(), sess.ID, "", time.Now(), RoleUser); err != nil {
		t.Fatalf("empty content should be accepted: %v", err)
	}
}

func TestAppendMessage_SessionNotFound(t *testing.T) {
	svc, _ := newTestService(t, 20)

	_, err := svc.AppendMessage(context.Background(), 424242, "hello", time.Now(), RoleUser)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAppendMessage_InvalidRole(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess, err := svc.GetOrCreateSession(context.Background(), 1019)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}

	for _, role := range []string{"assistant", "system", "", "USER"} {
		if _, err := svc.AppendMessage(context.Background(), sess.ID, "x", time.Now(), role); !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("role %q: expected ErrInvalidRole, got %v", role, err)
		}
	}
}

func TestAppendMessageIdempotent_DeduplicatesByKey(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess, err := svc.GetOrCreateSession(context.Background(), 1020)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}

	key := "tg:update:77:user"
	first, created, err := svc.AppendMessageIdempotent(context.Background(), sess.ID, "hello", time.Now(), RoleUser, &key)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if !created {
		t.Fatalf("first append should create a row")
	}

	second, created, err := svc.AppendMessageIdempotent(context.Background(), sess.ID, "hello", time.Now(), RoleUser, &key)
	if err != nil {
		t.Fatalf("retried append: %v", err)
	}
	if created {
		t.Fatalf("retried append must not create a second row")
	}
	if second.ID != first.ID {
		t.Fatalf("expected message %d, got %d", first.ID, second.ID)
	}

	history, err := svc.HistoryN(context.Background(), sess.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 stored turn, got %d", len(history))
	}
}

func TestClearHistory_CountsThenZero(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess := seedSession(t, svc, 1021, 10)

	deleted, err := svc.ClearHistory(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if deleted != 10 {
		t.Fatalf("expected 10 deleted, got %d", deleted)
	}

	deleted, err = svc.ClearHistory(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 deleted on empty session, got %d", deleted)
	}
}

func TestClearHistory_EmptiesEveryWindowButKeepsSession(t *testing.T) {
	svc, _ := newTestService(t, 20)
	sess := seedSession(t, svc, 1022, 10)

	if _, err := svc.ClearHistory(context.Background(), sess.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}

	for _, limit := range []int{1, 5, 100} {
		history, err := svc.HistoryN(context.Background(), sess.ID, limit)
		if err != nil {
			t.Fatalf("history limit %d: %v", limit, err)
		}
		if len(history) != 0 {
			t.Fatalf("limit %d: expected empty history after clear, got %d", limit, len(history))
		}
	}

	again, err := svc.GetOrCreateSession(context.Background(), 1022)
	if err != nil {
		t.Fatalf("get-or-create after clear: %v", err)
	}
	if again.ID != sess.ID {
		t.Fatalf("clearing must not delete the session row")
	}
}

func TestClearHistory_DoesNotTouchOtherSessions(t *testing.T) {
	svc, _ := newTestService(t, 20)
	a := seedSession(t, svc, 1023, 4)
	b := seedSession(t, svc, 1024, 6)

	deleted, err := svc.ClearHistory(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("expected 4 deleted, got %d", deleted)
	}

	history, err := svc.HistoryN(context.Background(), b.ID, 100)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 6 {
		t.Fatalf("other session lost messages: got %d", len(history))
	}
}

func TestNewService_ClampsWindowSize(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	for _, bad := range []int{0, -5, 100000} {
		if got := NewService(repo, bad).MaxHistory(); got != defaultMaxHistory {
			t.Fatalf("window %d: expected clamp to %d, got %d", bad, defaultMaxHistory, got)
		}
	}
	if got := NewService(repo, 7).MaxHistory(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}
