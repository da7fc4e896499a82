// Package connection はユーザー間のつながりの状態遷移を提供する。
//
// 状態は pending から accepted / rejected へ遷移し、受信者はどの状態からでも blocked にできる。
// 同じ2人の間のつながりは方向を問わず1件に限られる。
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/notify"
	"github.com/hitoshi/schedly/internal/repository"
)

// UserFinder はユーザーの取得に使うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Notifier はコミット後の通知を非同期に発行する。
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// Recorder はつながりの状態遷移を記録する。
type Recorder interface {
	RecordConnectionTransition(status string)
}

// Service はつながりのサービス層。
type Service struct {
	conns    repository.ConnectionRepository
	users    UserFinder
	notifier Notifier
	recorder Recorder
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(conns repository.ConnectionRepository, users UserFinder, notifier Notifier, recorder Recorder) *Service {
	return &Service{
		conns:    conns,
		users:    users,
		notifier: notifier,
		recorder: recorder,
		now:      time.Now,
	}
}

// Send はつながり申請を作成する。
// 方向を問わず既につながりがある場合は状態にかかわらずConflictを返す。
func (s *Service) Send(ctx context.Context, senderID, receiverID, message string) (*model.Connection, error) {
	if senderID == receiverID {
		return nil, model.NewSelfConnectionError()
	}

	sender, err := s.findUser(ctx, senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.findUser(ctx, receiverID)
	if err != nil {
		return nil, err
	}

	existing, err := s.conns.FindBetween(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("つながりの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewConnectionExistsError()
	}

	now := s.now()
	c := &model.Connection{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.ConnectionPending,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.conns.Create(ctx, c); err != nil {
		// 同時申請は一意インデックスで弾かれる
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConnectionExistsError()
		}
		return nil, fmt.Errorf("つながり申請の作成に失敗しました: %w", err)
	}

	s.recorder.RecordConnectionTransition(string(model.ConnectionPending))
	slog.Info("つながり申請を作成しました",
		slog.String("connection_id", c.ID),
		slog.String("sender_id", senderID),
		slog.String("receiver_id", receiverID),
	)

	s.notifier.Dispatch(ctx, notify.ConnectionRequested(c, sender, receiver))
	return c, nil
}

// Accept は受信者として申請を承認する。
func (s *Service) Accept(ctx context.Context, actorID, id string) (*model.Connection, error) {
	c, err := s.resolve(ctx, actorID, id, model.ConnectionAccepted)
	if err != nil {
		return nil, err
	}
	s.notifyParties(ctx, c, notify.ConnectionAccepted)
	return c, nil
}

// Reject は受信者として申請を拒否する。
func (s *Service) Reject(ctx context.Context, actorID, id string) (*model.Connection, error) {
	c, err := s.resolve(ctx, actorID, id, model.ConnectionRejected)
	if err != nil {
		return nil, err
	}
	s.notifyParties(ctx, c, notify.ConnectionRejected)
	return c, nil
}

// Block は受信者としてつながりをブロックする。現在の状態は問わない。
func (s *Service) Block(ctx context.Context, actorID, id string) (*model.Connection, error) {
	c, err := s.asReceiver(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	c.Status = model.ConnectionBlocked
	c.UpdatedAt = s.now()
	if err := s.conns.UpdateStatus(ctx, c); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewConnectionNotFoundError(id)
		}
		return nil, fmt.Errorf("つながりのブロックに失敗しました: %w", err)
	}

	s.recorder.RecordConnectionTransition(string(model.ConnectionBlocked))
	slog.Info("つながりをブロックしました",
		slog.String("connection_id", id),
		slog.String("user_id", actorID),
	)
	return c, nil
}

// Remove はつながりを削除する。当事者であればどちらからでも削除できる。
func (s *Service) Remove(ctx context.Context, actorID, id string) error {
	if _, err := s.participant(ctx, actorID, id); err != nil {
		return err
	}

	if err := s.conns.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewConnectionNotFoundError(id)
		}
		return fmt.Errorf("つながりの削除に失敗しました: %w", err)
	}

	slog.Info("つながりを削除しました",
		slog.String("connection_id", id),
		slog.String("user_id", actorID),
	)
	return nil
}

// AreConnected は方向を問わず承認済みのつながりがあるかを返す。
func (s *Service) AreConnected(ctx context.Context, userA, userB string) (bool, error) {
	ok, err := s.conns.ExistsAccepted(ctx, userA, userB)
	if err != nil {
		return false, fmt.Errorf("つながりの確認に失敗しました: %w", err)
	}
	return ok, nil
}

// ListAccepted は送信・受信を問わず承認済みのつながりを返す。
func (s *Service) ListAccepted(ctx context.Context, userID string) ([]*model.ConnectionDetail, error) {
	list, err := s.conns.ListAccepted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("つながり一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListPendingSent は送信した申請中のつながりを返す。
func (s *Service) ListPendingSent(ctx context.Context, userID string) ([]*model.ConnectionDetail, error) {
	list, err := s.conns.ListBySender(ctx, userID, model.ConnectionPending)
	if err != nil {
		return nil, fmt.Errorf("つながり一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListPendingReceived は受信した申請中のつながりを返す。
func (s *Service) ListPendingReceived(ctx context.Context, userID string) ([]*model.ConnectionDetail, error) {
	list, err := s.conns.ListByReceiver(ctx, userID, model.ConnectionPending)
	if err != nil {
		return nil, fmt.Errorf("つながり一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListBlocked はユーザーがブロックしたつながりを返す。
func (s *Service) ListBlocked(ctx context.Context, userID string) ([]*model.ConnectionDetail, error) {
	list, err := s.conns.ListByReceiver(ctx, userID, model.ConnectionBlocked)
	if err != nil {
		return nil, fmt.Errorf("つながり一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// resolve は申請中のつながりを指定状態へ遷移させる。
// 状態の比較と更新はストレージ側で原子的に行い、同時に処理された場合は一方のみ成功する。
func (s *Service) resolve(ctx context.Context, actorID, id string, to model.ConnectionStatus) (*model.Connection, error) {
	c, err := s.asReceiver(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConnectionPending {
		return nil, model.NewConnectionNotPendingError(c.Status)
	}

	now := s.now()
	c.Status = to
	c.UpdatedAt = now
	if to == model.ConnectionAccepted {
		c.ConnectedAt = &now
	}

	ok, err := s.conns.UpdateStatusIf(ctx, c, model.ConnectionPending)
	if err != nil {
		return nil, fmt.Errorf("つながりの更新に失敗しました: %w", err)
	}
	if !ok {
		current, err := s.conns.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("つながりの取得に失敗しました: %w", err)
		}
		if current == nil {
			return nil, model.NewConnectionNotFoundError(id)
		}
		return nil, model.NewConnectionNotPendingError(current.Status)
	}

	s.recorder.RecordConnectionTransition(string(to))
	slog.Info("つながりの状態を更新しました",
		slog.String("connection_id", id),
		slog.String("status", string(to)),
	)
	return c, nil
}

// notifyParties は当事者を取得して通知を発行する。取得に失敗した場合は通知を省略する。
func (s *Service) notifyParties(ctx context.Context, c *model.Connection, build func(*model.Connection, *model.User, *model.User) notify.Message) {
	sender, senderErr := s.users.FindByID(ctx, c.SenderID)
	receiver, receiverErr := s.users.FindByID(ctx, c.ReceiverID)
	if err := errors.Join(senderErr, receiverErr); err != nil || sender == nil || receiver == nil {
		slog.Warn("当事者を取得できないため通知を省略します",
			slog.String("connection_id", c.ID),
			slog.Any("error", err),
		)
		return
	}
	s.notifier.Dispatch(ctx, build(c, sender, receiver))
}

// participant は当事者から見えるつながりを返す。第三者には存在しないものとして扱う。
func (s *Service) participant(ctx context.Context, actorID, id string) (*model.Connection, error) {
	c, err := s.conns.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("つながりの取得に失敗しました: %w", err)
	}
	if c == nil || !c.Involves(actorID) {
		return nil, model.NewConnectionNotFoundError(id)
	}
	return c, nil
}

// asReceiver は受信者のみが操作できるつながりを返す。送信者にはForbiddenを返す。
func (s *Service) asReceiver(ctx context.Context, actorID, id string) (*model.Connection, error) {
	c, err := s.participant(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if c.ReceiverID != actorID {
		return nil, model.NewActionForbiddenError("この操作は申請の受信者のみ行えます。")
	}
	return c, nil
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
