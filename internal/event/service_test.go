package event

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/schedly/internal/calendar"
	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/repository"
)

// --- モック ---

type mockEventRepo struct {
	findByIDFn     func(ctx context.Context, id string) (*model.Event, error)
	listByUserIDFn func(ctx context.Context, userID string, publicOnly bool) ([]*model.Event, error)
	createFn       func(ctx context.Context, ev *model.Event) error
	updateFn       func(ctx context.Context, ev *model.Event) error
	deleteByIDFn   func(ctx context.Context, id string) error
}

func (m *mockEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockEventRepo) ListByUserID(ctx context.Context, userID string, publicOnly bool) ([]*model.Event, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID, publicOnly)
	}
	return nil, nil
}
func (m *mockEventRepo) Create(ctx context.Context, ev *model.Event) error {
	if m.createFn != nil {
		return m.createFn(ctx, ev)
	}
	return nil
}
func (m *mockEventRepo) Update(ctx context.Context, ev *model.Event) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, ev)
	}
	return nil
}
func (m *mockEventRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.User{ID: id, Email: id + "@example.com"}, nil
}

type mockLinker struct {
	provisionFn func(ctx context.Context, owner *model.User, m calendar.Meeting) calendar.Link
}

func (m *mockLinker) Provision(ctx context.Context, owner *model.User, mt calendar.Meeting) calendar.Link {
	if m.provisionFn != nil {
		return m.provisionFn(ctx, owner, mt)
	}
	return calendar.Link{URL: calendar.FallbackMeetLink, Fallback: true}
}

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockEventRepo, linker *mockLinker) *Service {
	svc := NewService(repo, &mockUserFinder{}, linker)
	svc.now = func() time.Time { return testNow }
	return svc
}

func boolPtr(v bool) *bool { return &v }

// --- テスト ---

// TestService_Create はMeetリンクを発行してイベントを保存することを検証する。
func TestService_Create(t *testing.T) {
	var meeting calendar.Meeting
	linker := &mockLinker{
		provisionFn: func(ctx context.Context, owner *model.User, m calendar.Meeting) calendar.Link {
			if owner.ID != "user-1" {
				t.Errorf("owner = %s, want user-1", owner.ID)
			}
			meeting = m
			return calendar.Link{URL: "https://meet.google.com/abc-defg-hij", EventID: "g1"}
		},
	}
	var saved *model.Event
	repo := &mockEventRepo{
		createFn: func(ctx context.Context, ev *model.Event) error {
			saved = ev
			return nil
		},
	}

	ev, err := newTestService(repo, linker).Create(context.Background(), "user-1", Input{
		Title:           "  Intro call ",
		DurationMinutes: 45,
		IsPrivate:       boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if saved != ev {
		t.Fatal("repository did not receive the created event")
	}
	if ev.ID == "" {
		t.Error("ID is empty")
	}
	if ev.Title != "Intro call" {
		t.Errorf("Title = %q, want %q", ev.Title, "Intro call")
	}
	if ev.MeetLink != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("MeetLink = %q", ev.MeetLink)
	}
	if ev.IsPrivate {
		t.Error("IsPrivate = true, want false")
	}
	if meeting.Summary != "Intro call (Permanent Meet Link)" {
		t.Errorf("Summary = %q", meeting.Summary)
	}
	if want := testNow.AddDate(1, 0, 0); !meeting.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", meeting.Start, want)
	}
	if got := meeting.End.Sub(meeting.Start); got != 45*time.Minute {
		t.Errorf("meeting length = %v, want 45m", got)
	}
}

// TestService_Create_Defaults は所要時間と公開設定の既定値を検証する。
func TestService_Create_Defaults(t *testing.T) {
	ev, err := newTestService(&mockEventRepo{}, &mockLinker{}).Create(context.Background(), "user-1", Input{Title: "Chat"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ev.DurationMinutes != model.DefaultEventDurationMinutes {
		t.Errorf("DurationMinutes = %d, want %d", ev.DurationMinutes, model.DefaultEventDurationMinutes)
	}
	if !ev.IsPrivate {
		t.Error("IsPrivate = false, want true")
	}
	if ev.MeetLink != calendar.FallbackMeetLink {
		t.Errorf("MeetLink = %q, want fallback", ev.MeetLink)
	}
}

// TestService_Create_Invalid は不正な入力でバリデーションエラーを返すことを検証する。
func TestService_Create_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		code string
	}{
		{"空のタイトル", Input{Title: "  "}, model.ErrCodeInvalidRequest},
		{"負の所要時間", Input{Title: "x", DurationMinutes: -5}, model.ErrCodeInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockEventRepo{
				createFn: func(ctx context.Context, ev *model.Event) error {
					t.Error("Create should not be called")
					return nil
				},
			}
			_, err := newTestService(repo, &mockLinker{}).Create(context.Background(), "user-1", tt.in)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != tt.code {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

// TestService_Create_UserNotFound は存在しないユーザーでNotFoundを返すことを検証する。
func TestService_Create_UserNotFound(t *testing.T) {
	svc := NewService(&mockEventRepo{}, &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) { return nil, nil },
	}, &mockLinker{})

	_, err := svc.Create(context.Background(), "ghost", Input{Title: "x"})
	if model.KindOf(err) != model.KindNotFound {
		t.Errorf("KindOf(err) = %q, want %q", model.KindOf(err), model.KindNotFound)
	}
}

// TestService_Get_NotFound はイベントがない場合にNotFoundを返すことを検証する。
func TestService_Get_NotFound(t *testing.T) {
	_, err := newTestService(&mockEventRepo{}, &mockLinker{}).Get(context.Background(), "ev-1")
	if model.KindOf(err) != model.KindNotFound {
		t.Errorf("KindOf(err) = %q, want %q", model.KindOf(err), model.KindNotFound)
	}
}

// TestService_ListPublic は公開イベントのみを問い合わせることを検証する。
func TestService_ListPublic(t *testing.T) {
	var gotPublic []bool
	repo := &mockEventRepo{
		listByUserIDFn: func(ctx context.Context, userID string, publicOnly bool) ([]*model.Event, error) {
			gotPublic = append(gotPublic, publicOnly)
			return []*model.Event{{ID: "ev-1"}}, nil
		},
	}
	svc := newTestService(repo, &mockLinker{})

	if _, err := svc.ListPublic(context.Background(), "user-1"); err != nil {
		t.Fatalf("ListPublic() error = %v", err)
	}
	if _, err := svc.ListMine(context.Background(), "user-1"); err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if len(gotPublic) != 2 || !gotPublic[0] || gotPublic[1] {
		t.Errorf("publicOnly = %v, want [true false]", gotPublic)
	}
}

// TestService_Update はMeetリンクを保持したまま内容を更新することを検証する。
func TestService_Update(t *testing.T) {
	repo := &mockEventRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Event, error) {
			return &model.Event{ID: id, UserID: "user-1", Title: "old", DurationMinutes: 30, IsPrivate: true, MeetLink: "https://meet.google.com/keep"}, nil
		},
	}
	ev, err := newTestService(repo, &mockLinker{}).Update(context.Background(), "user-1", "ev-1", Input{Title: "new", DurationMinutes: 60})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if ev.Title != "new" || ev.DurationMinutes != 60 {
		t.Errorf("event = %+v", ev)
	}
	if !ev.IsPrivate {
		t.Error("IsPrivate changed without input")
	}
	if ev.MeetLink != "https://meet.google.com/keep" {
		t.Errorf("MeetLink = %q", ev.MeetLink)
	}
	if !ev.UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v, want %v", ev.UpdatedAt, testNow)
	}
}

// TestService_Update_NotOwner は他人のイベントをNotFoundとして扱うことを検証する。
func TestService_Update_NotOwner(t *testing.T) {
	repo := &mockEventRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Event, error) {
			return &model.Event{ID: id, UserID: "owner"}, nil
		},
		updateFn: func(ctx context.Context, ev *model.Event) error {
			t.Error("Update should not be called")
			return nil
		},
	}
	_, err := newTestService(repo, &mockLinker{}).Update(context.Background(), "intruder", "ev-1", Input{Title: "x"})
	if model.KindOf(err) != model.KindNotFound {
		t.Errorf("KindOf(err) = %q, want %q", model.KindOf(err), model.KindNotFound)
	}
}

// TestService_Delete は所有者のイベントを削除することを検証する。
func TestService_Delete(t *testing.T) {
	var deleted string
	repo := &mockEventRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Event, error) {
			return &model.Event{ID: id, UserID: "user-1"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	if err := newTestService(repo, &mockLinker{}).Delete(context.Background(), "user-1", "ev-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted != "ev-1" {
		t.Errorf("deleted = %q, want ev-1", deleted)
	}
}

// TestService_Delete_Errors は削除時のエラー変換を検証する。
func TestService_Delete_Errors(t *testing.T) {
	owned := func(ctx context.Context, id string) (*model.Event, error) {
		return &model.Event{ID: id, UserID: "user-1"}, nil
	}

	t.Run("並行削除", func(t *testing.T) {
		repo := &mockEventRepo{
			findByIDFn:   owned,
			deleteByIDFn: func(ctx context.Context, id string) error { return repository.ErrNotFound },
		}
		err := newTestService(repo, &mockLinker{}).Delete(context.Background(), "user-1", "ev-1")
		if model.KindOf(err) != model.KindNotFound {
			t.Errorf("KindOf(err) = %q, want %q", model.KindOf(err), model.KindNotFound)
		}
	})

	t.Run("DBエラー", func(t *testing.T) {
		repo := &mockEventRepo{
			findByIDFn:   owned,
			deleteByIDFn: func(ctx context.Context, id string) error { return errors.New("db down") },
		}
		err := newTestService(repo, &mockLinker{}).Delete(context.Background(), "user-1", "ev-1")
		if err == nil || !strings.Contains(err.Error(), "db down") {
			t.Errorf("error = %v, want wrapped db error", err)
		}
	})
}
