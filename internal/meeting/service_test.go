package meeting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/schedly/internal/calendar"
	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/notify"
)

// --- モック ---

type memoryRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*model.MeetingRequest

	// beforeResolve はResolveIfPendingの直前に呼ばれる。同時処理の再現に使う。
	beforeResolve func(m *model.MeetingRequest)
}

func newMemoryRepo() *memoryRequestRepo {
	return &memoryRequestRepo{requests: map[string]*model.MeetingRequest{}}
}

func (r *memoryRequestRepo) FindByID(ctx context.Context, id string) (*model.MeetingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.requests[id]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}
func (r *memoryRequestRepo) Create(ctx context.Context, m *model.MeetingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *m
	r.requests[m.ID] = &copied
	return nil
}
func (r *memoryRequestRepo) ResolveIfPending(ctx context.Context, m *model.MeetingRequest) (bool, error) {
	if r.beforeResolve != nil {
		r.beforeResolve(m)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.requests[m.ID]
	if !ok || current.Status != model.MeetingPending {
		return false, nil
	}
	copied := *m
	r.requests[m.ID] = &copied
	return true, nil
}
func (r *memoryRequestRepo) ListByRequester(ctx context.Context, userID string) ([]*model.MeetingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MeetingRequest
	for _, m := range r.requests {
		if m.RequesterID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}
func (r *memoryRequestRepo) ListByReceiver(ctx context.Context, userID string, status model.MeetingRequestStatus) ([]*model.MeetingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MeetingRequest
	for _, m := range r.requests {
		if m.ReceiverID == userID && (status == "" || m.Status == status) {
			out = append(out, m)
		}
	}
	return out, nil
}

type mockUserFinder struct {
	users map[string]*model.User
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

type mockConnections struct {
	connected map[[2]string]bool
	err       error
}

func (m *mockConnections) AreConnected(ctx context.Context, a, b string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.connected[[2]string{a, b}] || m.connected[[2]string{b, a}], nil
}

type mockLinker struct {
	owner   *model.User
	meeting calendar.Meeting
	link    calendar.Link
}

func (m *mockLinker) Provision(ctx context.Context, owner *model.User, mt calendar.Meeting) calendar.Link {
	m.owner = owner
	m.meeting = mt
	return m.link
}

type mockNotifier struct {
	messages []notify.Message
}

func (m *mockNotifier) Dispatch(ctx context.Context, msg notify.Message) {
	m.messages = append(m.messages, msg)
}

type mockRecorder struct {
	transitions []string
}

func (m *mockRecorder) RecordMeetingTransition(status string) {
	m.transitions = append(m.transitions, status)
}

type fixture struct {
	svc         *Service
	repo        *memoryRequestRepo
	connections *mockConnections
	linker      *mockLinker
	notifier    *mockNotifier
	recorder    *mockRecorder
}

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		repo:        newMemoryRepo(),
		connections: &mockConnections{connected: map[[2]string]bool{{"alice", "bob"}: true}},
		linker:      &mockLinker{link: calendar.Link{URL: "https://meet.google.com/xyz", EventID: "gcal-1"}},
		notifier:    &mockNotifier{},
		recorder:    &mockRecorder{},
	}
	users := &mockUserFinder{users: map[string]*model.User{
		"alice": {ID: "alice", Name: "Alice", Email: "alice@example.com"},
		"bob":   {ID: "bob", Name: "Bob", Email: "bob@example.com", Calendar: model.CalendarCredential{RefreshToken: "r"}},
		"carol": {ID: "carol", Name: "Carol", Email: "carol@example.com"},
	}}
	f.svc = NewService(f.repo, users, f.connections, f.linker, f.notifier, f.recorder)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func input(receiver string) Input {
	start := time.Date(2026, 10, 22, 15, 0, 0, 0, time.UTC)
	return Input{
		ReceiverID:  receiver,
		Title:       "Roadmap sync",
		Description: "Q4 plans",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
	}
}

func (f *fixture) create(t *testing.T) *model.MeetingRequest {
	t.Helper()
	m, err := f.svc.Create(context.Background(), "alice", input("bob"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return m
}

// --- テスト ---

// TestService_Create はつながりのある相手へ申請中のリクエストを作成することを検証する。
func TestService_Create(t *testing.T) {
	f := newFixture()
	m := f.create(t)

	if m.Status != model.MeetingPending {
		t.Errorf("Status = %q, want %q", m.Status, model.MeetingPending)
	}
	if len(f.notifier.messages) != 1 || f.notifier.messages[0].Kind != notify.KindMeetingRequested {
		t.Fatalf("messages = %+v", f.notifier.messages)
	}
	if f.notifier.messages[0].To.ID != "bob" {
		t.Errorf("To = %q, want bob", f.notifier.messages[0].To.ID)
	}
}

// TestService_Create_NotConnected はつながりのない相手への申請がForbiddenになることを検証する。
func TestService_Create_NotConnected(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), "alice", input("carol"))
	if model.KindOf(err) != model.KindForbidden {
		t.Errorf("KindOf(err) = %q, want %q", model.KindOf(err), model.KindForbidden)
	}
	if len(f.repo.requests) != 0 {
		t.Error("request stored without connection")
	}
}

// TestService_Create_Errors は作成時のエラー分類を検証する。
func TestService_Create_Errors(t *testing.T) {
	bad := input("bob")
	bad.EndTime = bad.StartTime

	tests := []struct {
		name      string
		requester string
		in        Input
		kind      model.ErrorKind
	}{
		{"受信者なし", "alice", input("ghost"), model.KindNotFound},
		{"申請者なし", "ghost", input("bob"), model.KindNotFound},
		{"自分自身", "alice", input("alice"), model.KindForbidden},
		{"時間帯不正", "alice", bad, model.KindValidation},
		{"タイトルなし", "alice", Input{ReceiverID: "bob", StartTime: bad.StartTime, EndTime: bad.StartTime.Add(time.Hour)}, model.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Create(context.Background(), tt.requester, tt.in)
			if model.KindOf(err) != tt.kind {
				t.Errorf("KindOf(err) = %q, want %q (err = %v)", model.KindOf(err), tt.kind, err)
			}
		})
	}
}

// TestService_Create_ConnectionCheckError はつながり確認の失敗をラップして返すことを検証する。
func TestService_Create_ConnectionCheckError(t *testing.T) {
	f := newFixture()
	boom := errors.New("boom")
	f.connections.err = boom

	if _, err := f.svc.Create(context.Background(), "alice", input("bob")); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped boom", err)
	}
}

// TestService_Approve は受信者のカレンダーでリンクを発行して承認することを検証する。
func TestService_Approve(t *testing.T) {
	f := newFixture()
	m := f.create(t)

	approved, err := f.svc.Approve(context.Background(), "bob", m.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != model.MeetingApproved {
		t.Errorf("Status = %q, want %q", approved.Status, model.MeetingApproved)
	}
	if approved.MeetLink != "https://meet.google.com/xyz" || approved.GoogleEventID != "gcal-1" {
		t.Errorf("link = %q / %q", approved.MeetLink, approved.GoogleEventID)
	}
	if f.linker.owner == nil || f.linker.owner.ID != "bob" {
		t.Errorf("provisioned with owner %+v, want receiver", f.linker.owner)
	}
	if len(f.linker.meeting.Attendees) != 2 {
		t.Errorf("Attendees = %v", f.linker.meeting.Attendees)
	}

	stored, _ := f.repo.FindByID(context.Background(), m.ID)
	if stored.Status != model.MeetingApproved || stored.MeetLink == "" {
		t.Errorf("stored = %+v", stored)
	}

	last := f.notifier.messages[len(f.notifier.messages)-1]
	if last.Kind != notify.KindMeetingApproved || last.MeetLink != "https://meet.google.com/xyz" {
		t.Errorf("message = %+v", last)
	}
	want := []string{"pending", "approved"}
	if len(f.recorder.transitions) != 2 || f.recorder.transitions[1] != want[1] {
		t.Errorf("transitions = %v, want %v", f.recorder.transitions, want)
	}
}

// TestService_Approve_Fallback はリンク発行に失敗しても承認されることを検証する。
func TestService_Approve_Fallback(t *testing.T) {
	f := newFixture()
	f.linker.link = calendar.Link{URL: calendar.FallbackMeetLink, Fallback: true}
	m := f.create(t)

	approved, err := f.svc.Approve(context.Background(), "bob", m.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.MeetLink != calendar.FallbackMeetLink || approved.GoogleEventID != "" {
		t.Errorf("link = %q / %q", approved.MeetLink, approved.GoogleEventID)
	}
}

// TestService_Reject は拒否理由の既定値を検証する。
func TestService_Reject(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   string
	}{
		{"理由あり", "busy that week", "busy that week"},
		{"理由なし", "  ", model.DefaultRejectionReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			m := f.create(t)

			rejected, err := f.svc.Reject(context.Background(), "bob", m.ID, tt.reason)
			if err != nil {
				t.Fatalf("Reject() error = %v", err)
			}
			if rejected.Status != model.MeetingRejected || rejected.RejectionReason != tt.want {
				t.Errorf("request = %+v", rejected)
			}
			last := f.notifier.messages[len(f.notifier.messages)-1]
			if last.Kind != notify.KindMeetingRejected || last.Note != tt.want {
				t.Errorf("message = %+v", last)
			}
		})
	}
}

// TestService_TerminalGuard は処理済みのリクエストの承認・拒否がInvalidStateになることを検証する。
func TestService_TerminalGuard(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.create(t)
	if _, err := f.svc.Reject(ctx, "bob", m.ID, ""); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	if _, err := f.svc.Approve(ctx, "bob", m.ID); model.KindOf(err) != model.KindInvalidState {
		t.Errorf("Approve kind = %q, want %q", model.KindOf(err), model.KindInvalidState)
	}
	if _, err := f.svc.Reject(ctx, "bob", m.ID, ""); model.KindOf(err) != model.KindInvalidState {
		t.Errorf("Reject kind = %q, want %q", model.KindOf(err), model.KindInvalidState)
	}
}

// TestService_Approve_LostRace は確定直前に他の処理が先行した場合InvalidStateを返すことを検証する。
func TestService_Approve_LostRace(t *testing.T) {
	f := newFixture()
	m := f.create(t)
	f.repo.beforeResolve = func(*model.MeetingRequest) {
		f.repo.mu.Lock()
		f.repo.requests[m.ID].Status = model.MeetingRejected
		f.repo.mu.Unlock()
	}
	sent := len(f.notifier.messages)

	_, err := f.svc.Approve(context.Background(), "bob", m.ID)
	if model.KindOf(err) != model.KindInvalidState {
		t.Errorf("KindOf(err) = %q, want %q", model.KindOf(err), model.KindInvalidState)
	}
	if len(f.notifier.messages) != sent {
		t.Error("notification dispatched for lost transition")
	}
}

// TestService_Roles は当事者の役割と第三者の扱いを検証する。
func TestService_Roles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.create(t)

	if _, err := f.svc.Approve(ctx, "alice", m.ID); model.KindOf(err) != model.KindForbidden {
		t.Errorf("requester Approve kind = %q, want %q", model.KindOf(err), model.KindForbidden)
	}
	if _, err := f.svc.Get(ctx, "carol", m.ID); model.KindOf(err) != model.KindNotFound {
		t.Errorf("outsider Get kind = %q, want %q", model.KindOf(err), model.KindNotFound)
	}
	if _, err := f.svc.Get(ctx, "alice", m.ID); err != nil {
		t.Errorf("requester Get error = %v", err)
	}
	if _, err := f.svc.Reject(ctx, "bob", "missing", ""); model.KindOf(err) != model.KindNotFound {
		t.Errorf("missing Reject kind = %q, want %q", model.KindOf(err), model.KindNotFound)
	}
}

// TestService_Lists は送信・受信・申請中の一覧を検証する。
func TestService_Lists(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.create(t)
	f.create(t)
	if _, err := f.svc.Approve(ctx, "bob", first.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	sent, _ := f.svc.ListSent(ctx, "alice")
	received, _ := f.svc.ListReceived(ctx, "bob")
	pending, _ := f.svc.ListPending(ctx, "bob")

	if len(sent) != 2 || len(received) != 2 || len(pending) != 1 {
		t.Errorf("sent/received/pending = %d/%d/%d, want 2/2/1", len(sent), len(received), len(pending))
	}
}
