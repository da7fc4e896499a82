// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/schedly/internal/model"
)

var (
	// ErrDuplicate は一意制約違反で書き込みが拒否されたことを表す。
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound は更新・削除対象の行が存在しなかったことを表す。
	ErrNotFound = errors.New("record not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByFirebaseUID は認証主体IDでユーザーを検索する。見つからない場合はnilを返す。
	FindByFirebaseUID(ctx context.Context, uid string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。一意制約違反の場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile は名前、ユーザー名、画像URL、電話番号を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdateCalendarCredential はGoogleカレンダーのトークンを保存する。
	// ゼロ値を渡すと連携解除となる。
	UpdateCalendarCredential(ctx context.Context, userID string, cred model.CalendarCredential) error

	// DeleteByID は指定IDのユーザーを削除する。
	// イベント、予約、空き時間、つながり、ミーティングリクエストはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// EventRepository はイベントデータの永続化インターフェース。
type EventRepository interface {
	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// ListByUserID はユーザーのイベント一覧を作成日時の新しい順で返す。
	// publicOnlyがtrueの場合は公開イベントのみを返す。
	ListByUserID(ctx context.Context, userID string, publicOnly bool) ([]*model.Event, error)

	// Create はイベントを作成する。
	Create(ctx context.Context, event *model.Event) error

	// Update はタイトル、説明、所要時間、公開設定を更新する。
	Update(ctx context.Context, event *model.Event) error

	// DeleteByID は指定IDのイベントを削除する。予約はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// AvailabilityRepository は空き時間設定の永続化インターフェース。
type AvailabilityRepository interface {
	// FindByUserID はユーザーの空き時間設定を曜日別の時間帯込みで取得する。
	// 見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Availability, error)

	// Create は空き時間設定と時間帯を同一トランザクションで作成する。
	// ユーザーに既に設定がある場合はErrDuplicateを返す。
	Create(ctx context.Context, availability *model.Availability) error

	// Replace は間隔を更新し、時間帯を全件削除してから再作成する。
	// 全体を1トランザクションで行う。
	Replace(ctx context.Context, availability *model.Availability) error

	// DeleteByUserID はユーザーの空き時間設定を削除する。時間帯はCASCADE削除される。
	DeleteByUserID(ctx context.Context, userID string) error
}

// BookingRepository は予約データの永続化インターフェース。
type BookingRepository interface {
	// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Booking, error)

	// ListByUserID はユーザーが行った予約を開始時刻順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Booking, error)

	// ListByEventID はイベントの予約を開始時刻順で返す。
	ListByEventID(ctx context.Context, eventID string) ([]*model.Booking, error)

	// ListByUserIDInRange は [start, end] に完全に含まれるユーザーの予約を開始時刻順で返す。
	ListByUserIDInRange(ctx context.Context, userID string, start, end time.Time) ([]*model.Booking, error)

	// CreateIfNoConflict は同じイベントの既存予約と重ならない場合のみ予約を作成する。
	// イベント行をロックして重複判定と挿入を直列化する。
	// 重なる予約があった場合はfalseを返す。
	CreateIfNoConflict(ctx context.Context, booking *model.Booking) (bool, error)

	// UpdateIfNoConflict は自身を除く同じイベントの予約と重ならない場合のみ予約を更新する。
	// 重なる予約があった場合はfalseを返す。
	UpdateIfNoConflict(ctx context.Context, booking *model.Booking) (bool, error)

	// DeleteByID は指定IDの予約を削除する。
	DeleteByID(ctx context.Context, id string) error
}

// ConnectionRepository はつながりデータの永続化インターフェース。
type ConnectionRepository interface {
	// FindByID は指定IDのつながりを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Connection, error)

	// FindBetween は方向を問わず2ユーザー間のつながりを取得する。見つからない場合はnilを返す。
	FindBetween(ctx context.Context, userA, userB string) (*model.Connection, error)

	// ExistsAccepted は方向を問わず2ユーザー間に承認済みのつながりがあるかを返す。
	ExistsAccepted(ctx context.Context, userA, userB string) (bool, error)

	// Create はつながりを作成する。同じ組のつながりが既にある場合はErrDuplicateを返す。
	Create(ctx context.Context, conn *model.Connection) error

	// UpdateStatusIf は現在の状態がexpectedの場合のみ状態を更新する。
	// 更新できた場合はtrueを返す。
	UpdateStatusIf(ctx context.Context, conn *model.Connection, expected model.ConnectionStatus) (bool, error)

	// UpdateStatus は現在の状態にかかわらず状態を更新する。
	UpdateStatus(ctx context.Context, conn *model.Connection) error

	// DeleteByID は指定IDのつながりを削除する。
	DeleteByID(ctx context.Context, id string) error

	// ListAccepted はユーザーが送信側・受信側いずれかの承認済みつながりを返す。
	ListAccepted(ctx context.Context, userID string) ([]*model.ConnectionDetail, error)

	// ListBySender はユーザーが送信した指定状態のつながりを返す。
	ListBySender(ctx context.Context, userID string, status model.ConnectionStatus) ([]*model.ConnectionDetail, error)

	// ListByReceiver はユーザーが受信した指定状態のつながりを返す。
	ListByReceiver(ctx context.Context, userID string, status model.ConnectionStatus) ([]*model.ConnectionDetail, error)
}

// MeetingRequestRepository はミーティングリクエストの永続化インターフェース。
type MeetingRequestRepository interface {
	// FindByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.MeetingRequest, error)

	// Create はリクエストを作成する。
	Create(ctx context.Context, req *model.MeetingRequest) error

	// ResolveIfPending は状態がpendingの場合のみ状態、Meetリンク、外部イベントID、拒否理由を更新する。
	// 更新できた場合はtrueを返す。
	ResolveIfPending(ctx context.Context, req *model.MeetingRequest) (bool, error)

	// ListByRequester はユーザーが送信したリクエストを作成日時の新しい順で返す。
	ListByRequester(ctx context.Context, userID string) ([]*model.MeetingRequest, error)

	// ListByReceiver はユーザーが受信したリクエストを作成日時の新しい順で返す。
	// statusが空でなければその状態に絞り込む。
	ListByReceiver(ctx context.Context, userID string, status model.MeetingRequestStatus) ([]*model.MeetingRequest, error)
}
