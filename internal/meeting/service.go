// Package meeting はつながりのあるユーザー間のミーティングリクエストを扱う。
//
// リクエストは pending から approved / rejected へ一度だけ遷移する。
// 承認時には受信者のGoogleカレンダーでMeetリンクを発行し、失敗した場合は汎用リンクで承認を続ける。
package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/schedly/internal/calendar"
	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/notify"
	"github.com/hitoshi/schedly/internal/repository"
)

// UserFinder はユーザーの取得に使うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// ConnectionChecker は2ユーザー間に承認済みのつながりがあるかを判定する。
type ConnectionChecker interface {
	AreConnected(ctx context.Context, userA, userB string) (bool, error)
}

// MeetLinker はミーティング用のMeetリンクを発行する。
type MeetLinker interface {
	Provision(ctx context.Context, owner *model.User, m calendar.Meeting) calendar.Link
}

// Notifier はコミット後の通知を非同期に発行する。
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// Recorder はミーティングリクエストの状態遷移を記録する。
type Recorder interface {
	RecordMeetingTransition(status string)
}

// Input はミーティングリクエストの作成入力。
type Input struct {
	ReceiverID  string
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
}

// Service はミーティングリクエストのサービス層。
type Service struct {
	requests    repository.MeetingRequestRepository
	users       UserFinder
	connections ConnectionChecker
	linker      MeetLinker
	notifier    Notifier
	recorder    Recorder
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	requests repository.MeetingRequestRepository,
	users UserFinder,
	connections ConnectionChecker,
	linker MeetLinker,
	notifier Notifier,
	recorder Recorder,
) *Service {
	return &Service{
		requests:    requests,
		users:       users,
		connections: connections,
		linker:      linker,
		notifier:    notifier,
		recorder:    recorder,
		now:         time.Now,
	}
}

// Create はミーティングリクエストを作成する。
// 承認済みのつながりがない相手への申請はForbiddenを返す。
func (s *Service) Create(ctx context.Context, requesterID string, in Input) (*model.MeetingRequest, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, model.NewInvalidRequestError("タイトルを入力してください")
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, model.NewInvalidTimeRangeError()
	}

	requester, err := s.findUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.findUser(ctx, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	if requesterID == in.ReceiverID {
		return nil, model.NewNotConnectedError()
	}
	connected, err := s.connections.AreConnected(ctx, requesterID, in.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("つながりの確認に失敗しました: %w", err)
	}
	if !connected {
		return nil, model.NewNotConnectedError()
	}

	now := s.now()
	m := &model.MeetingRequest{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		ReceiverID:  in.ReceiverID,
		Title:       title,
		Description: in.Description,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Status:      model.MeetingPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.requests.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("ミーティングリクエストの作成に失敗しました: %w", err)
	}

	s.recorder.RecordMeetingTransition(string(model.MeetingPending))
	slog.Info("ミーティングリクエストを作成しました",
		slog.String("meeting_request_id", m.ID),
		slog.String("requester_id", requesterID),
		slog.String("receiver_id", in.ReceiverID),
	)

	s.notifier.Dispatch(ctx, notify.MeetingRequested(m, requester, receiver))
	return m, nil
}

// Approve は受信者としてリクエストを承認し、Meetリンクを発行する。
func (s *Service) Approve(ctx context.Context, actorID, id string) (*model.MeetingRequest, error) {
	m, err := s.pendingForReceiver(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	requester, err := s.findUser(ctx, m.RequesterID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.findUser(ctx, m.ReceiverID)
	if err != nil {
		return nil, err
	}

	// 状態の確定前に発行するため、同時承認に負けた場合は外部カレンダーに予定が残りうる
	link := s.linker.Provision(ctx, receiver, calendar.Meeting{
		Summary:     m.Title,
		Description: m.Description,
		Start:       m.StartTime,
		End:         m.EndTime,
		Attendees:   []string{requester.Email, receiver.Email},
	})

	m.Status = model.MeetingApproved
	m.MeetLink = link.URL
	m.GoogleEventID = link.EventID
	m.UpdatedAt = s.now()
	if err := s.commit(ctx, m); err != nil {
		return nil, err
	}

	slog.Info("ミーティングリクエストを承認しました",
		slog.String("meeting_request_id", id),
		slog.Bool("meet_link_fallback", link.Fallback),
	)
	s.notifier.Dispatch(ctx, notify.MeetingApproved(m, requester, receiver))
	return m, nil
}

// Reject は受信者としてリクエストを拒否する。理由が空の場合は既定の文言を保存する。
func (s *Service) Reject(ctx context.Context, actorID, id, reason string) (*model.MeetingRequest, error) {
	m, err := s.pendingForReceiver(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = model.DefaultRejectionReason
	}
	m.Status = model.MeetingRejected
	m.RejectionReason = reason
	m.UpdatedAt = s.now()
	if err := s.commit(ctx, m); err != nil {
		return nil, err
	}

	slog.Info("ミーティングリクエストを拒否しました",
		slog.String("meeting_request_id", id),
	)

	requester, reqErr := s.users.FindByID(ctx, m.RequesterID)
	receiver, recvErr := s.users.FindByID(ctx, m.ReceiverID)
	if reqErr != nil || recvErr != nil || requester == nil || receiver == nil {
		slog.Warn("当事者を取得できないため通知を省略します",
			slog.String("meeting_request_id", id),
		)
		return m, nil
	}
	s.notifier.Dispatch(ctx, notify.MeetingRejected(m, requester, receiver))
	return m, nil
}

// Get は当事者から見えるリクエストを返す。
func (s *Service) Get(ctx context.Context, actorID, id string) (*model.MeetingRequest, error) {
	m, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ミーティングリクエストの取得に失敗しました: %w", err)
	}
	if m == nil || !m.Involves(actorID) {
		return nil, model.NewMeetingRequestNotFoundError(id)
	}
	return m, nil
}

// ListPending は受信した申請中のリクエストを返す。
func (s *Service) ListPending(ctx context.Context, userID string) ([]*model.MeetingRequest, error) {
	list, err := s.requests.ListByReceiver(ctx, userID, model.MeetingPending)
	if err != nil {
		return nil, fmt.Errorf("ミーティングリクエスト一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListSent は送信したリクエストを返す。
func (s *Service) ListSent(ctx context.Context, userID string) ([]*model.MeetingRequest, error) {
	list, err := s.requests.ListByRequester(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ミーティングリクエスト一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListReceived は受信した全てのリクエストを返す。
func (s *Service) ListReceived(ctx context.Context, userID string) ([]*model.MeetingRequest, error) {
	list, err := s.requests.ListByReceiver(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("ミーティングリクエスト一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// pendingForReceiver は受信者が処理できる申請中のリクエストを返す。
func (s *Service) pendingForReceiver(ctx context.Context, actorID, id string) (*model.MeetingRequest, error) {
	m, err := s.Get(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if m.ReceiverID != actorID {
		return nil, model.NewActionForbiddenError("この操作はリクエストの受信者のみ行えます。")
	}
	if m.Status != model.MeetingPending {
		return nil, model.NewMeetingRequestNotPendingError(m.Status)
	}
	return m, nil
}

// commit は申請中の場合のみ状態を確定する。先に処理されていた場合はInvalidStateを返す。
func (s *Service) commit(ctx context.Context, m *model.MeetingRequest) error {
	ok, err := s.requests.ResolveIfPending(ctx, m)
	if err != nil {
		return fmt.Errorf("ミーティングリクエストの更新に失敗しました: %w", err)
	}
	if !ok {
		current, err := s.requests.FindByID(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("ミーティングリクエストの取得に失敗しました: %w", err)
		}
		if current == nil {
			return model.NewMeetingRequestNotFoundError(m.ID)
		}
		return model.NewMeetingRequestNotPendingError(current.Status)
	}
	s.recorder.RecordMeetingTransition(string(m.Status))
	return nil
}

func (s *Service) findUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}
