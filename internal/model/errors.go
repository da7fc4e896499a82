// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, booking, connection, meeting, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ErrorKind はエラーの分類を表す。
// HTTPステータスへの対応付けはハンドラー層が行う。
type ErrorKind string

const (
	KindUnknown      ErrorKind = ""
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindInvalidState ErrorKind = "invalid_state"
	KindForbidden    ErrorKind = "forbidden"
	KindUnavailable  ErrorKind = "unavailable"
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeInvalidTimeRange    = "INVALID_TIME_RANGE"
	ErrCodeInvalidDuration     = "INVALID_DURATION"
	ErrCodeInvalidAvailability = "INVALID_AVAILABILITY"
	ErrCodeSelfConnection      = "SELF_CONNECTION"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeRegistrationNeeded  = "REGISTRATION_REQUIRED"

	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeEventNotFound          = "EVENT_NOT_FOUND"
	ErrCodeAvailabilityNotFound   = "AVAILABILITY_NOT_FOUND"
	ErrCodeBookingNotFound        = "BOOKING_NOT_FOUND"
	ErrCodeConnectionNotFound     = "CONNECTION_NOT_FOUND"
	ErrCodeMeetingRequestNotFound = "MEETING_REQUEST_NOT_FOUND"

	ErrCodeUserExists         = "USER_EXISTS"
	ErrCodeUsernameTaken      = "USERNAME_TAKEN"
	ErrCodeAvailabilityExists = "AVAILABILITY_EXISTS"
	ErrCodeBookingConflict    = "BOOKING_CONFLICT"
	ErrCodeConnectionExists   = "CONNECTION_EXISTS"

	ErrCodeConnectionNotPending     = "CONNECTION_NOT_PENDING"
	ErrCodeMeetingRequestNotPending = "MEETING_REQUEST_NOT_PENDING"

	ErrCodeNotConnected    = "NOT_CONNECTED"
	ErrCodeActionForbidden = "ACTION_FORBIDDEN"
	ErrCodeInvalidState    = "INVALID_OAUTH_STATE"

	ErrCodeIdentityUnavailable = "IDENTITY_UNAVAILABLE"
	ErrCodeCalendarUnavailable = "CALENDAR_UNAVAILABLE"
)

var codeKinds = map[string]ErrorKind{
	ErrCodeInvalidRequest:      KindValidation,
	ErrCodeInvalidURL:          KindValidation,
	ErrCodeInvalidTimeRange:    KindValidation,
	ErrCodeInvalidDuration:     KindValidation,
	ErrCodeInvalidAvailability: KindValidation,
	ErrCodeSelfConnection:      KindValidation,
	ErrCodeUnauthorized:        KindUnauthorized,
	ErrCodeRegistrationNeeded:  KindUnauthorized,

	ErrCodeUserNotFound:           KindNotFound,
	ErrCodeEventNotFound:          KindNotFound,
	ErrCodeAvailabilityNotFound:   KindNotFound,
	ErrCodeBookingNotFound:        KindNotFound,
	ErrCodeConnectionNotFound:     KindNotFound,
	ErrCodeMeetingRequestNotFound: KindNotFound,

	ErrCodeUserExists:         KindConflict,
	ErrCodeUsernameTaken:      KindConflict,
	ErrCodeAvailabilityExists: KindConflict,
	ErrCodeBookingConflict:    KindConflict,
	ErrCodeConnectionExists:   KindConflict,

	ErrCodeConnectionNotPending:     KindInvalidState,
	ErrCodeMeetingRequestNotPending: KindInvalidState,

	ErrCodeNotConnected:    KindForbidden,
	ErrCodeActionForbidden: KindForbidden,
	ErrCodeInvalidState:    KindForbidden,

	ErrCodeIdentityUnavailable: KindUnavailable,
	ErrCodeCalendarUnavailable: KindUnavailable,
}

// Kind はエラーコードに対応する分類を返す。
func (e *APIError) Kind() ErrorKind {
	return codeKinds[e.Code]
}

// KindOf はエラーチェーン中のAPIErrorから分類を取り出す。
// APIErrorを含まない場合はKindUnknownを返す。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	return KindUnknown
}

// --- バリデーション ---

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewInvalidTimeRangeError は終了時刻が開始時刻以前の場合のエラーを生成する。
func NewInvalidTimeRangeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimeRange,
		Message:  "終了時刻は開始時刻より後である必要があります。",
		Category: "validation",
		Action:   "開始時刻と終了時刻を確認してください。",
	}
}

// NewInvalidDurationError は所要時間が正の整数でない場合のエラーを生成する。
func NewInvalidDurationError(minutes int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDuration,
		Message:  fmt.Sprintf("無効な所要時間です: %d分", minutes),
		Category: "validation",
		Action:   "所要時間には1以上の分数を指定してください。",
	}
}

// NewInvalidAvailabilityError は空き時間設定が不正な場合のエラーを生成する。
func NewInvalidAvailabilityError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAvailability,
		Message:  fmt.Sprintf("空き時間の設定が不正です: %s", reason),
		Category: "validation",
		Action:   "曜日は MONDAY〜SUNDAY、時刻は HH:MM 形式で、開始を終了より前にしてください。",
	}
}

// NewSelfConnectionError は自分自身へのつながり申請のエラーを生成する。
func NewSelfConnectionError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfConnection,
		Message:  "自分自身につながり申請はできません。",
		Category: "validation",
		Action:   "申請先のユーザーを確認してください。",
	}
}

// --- 認証 ---

// NewUnauthorizedError は認証されていない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です",
		Category: "auth",
		Action:   "ログインしてください",
	}
}

// NewRegistrationRequiredError はトークンは有効だがユーザー登録が済んでいない場合のエラーを生成する。
func NewRegistrationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationNeeded,
		Message:  "ユーザー登録が完了していません。",
		Category: "auth",
		Action:   "ユーザー登録を行ってください。",
	}
}

// NewIdentityUnavailableError はID基盤が利用できない場合のエラーを生成する。
func NewIdentityUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityUnavailable,
		Message:  "認証基盤が利用できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCalendarUnavailableError はGoogleカレンダー連携が利用できない場合のエラーを生成する。
func NewCalendarUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCalendarUnavailable,
		Message:  fmt.Sprintf("Googleカレンダーとの連携に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度連携をお試しください。",
	}
}

// NewInvalidOAuthStateError はOAuthのstateが不正な場合のエラーを生成する。
func NewInvalidOAuthStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "連携リクエストが不正または期限切れです。",
		Category: "auth",
		Action:   "Googleカレンダー連携を最初からやり直してください。",
	}
}

// --- NotFound ---

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewEventNotFoundError はイベントが見つからない場合のエラーを生成する。
func NewEventNotFoundError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", eventID),
		Category: "event",
		Action:   "イベントIDを確認してください。",
	}
}

// NewAvailabilityNotFoundError は空き時間設定が見つからない場合のエラーを生成する。
func NewAvailabilityNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAvailabilityNotFound,
		Message:  "空き時間が設定されていません。",
		Category: "availability",
		Action:   "先に空き時間を登録してください。",
	}
}

// NewBookingNotFoundError は予約が見つからない場合のエラーを生成する。
func NewBookingNotFoundError(bookingID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookingNotFound,
		Message:  fmt.Sprintf("指定された予約が見つかりません: %s", bookingID),
		Category: "booking",
		Action:   "予約IDを確認してください。",
	}
}

// NewConnectionNotFoundError はつながりが見つからない場合のエラーを生成する。
func NewConnectionNotFoundError(connectionID string) *APIError {
	return &APIError{
		Code:     ErrCodeConnectionNotFound,
		Message:  fmt.Sprintf("指定されたつながりが見つかりません: %s", connectionID),
		Category: "connection",
		Action:   "つながりIDを確認してください。",
	}
}

// NewMeetingRequestNotFoundError はミーティングリクエストが見つからない場合のエラーを生成する。
func NewMeetingRequestNotFoundError(requestID string) *APIError {
	return &APIError{
		Code:     ErrCodeMeetingRequestNotFound,
		Message:  fmt.Sprintf("指定されたミーティングリクエストが見つかりません: %s", requestID),
		Category: "meeting",
		Action:   "リクエストIDを確認してください。",
	}
}

// --- Conflict ---

// NewUserExistsError は同じ認証主体またはメールアドレスのユーザーが既に存在する場合のエラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserExists,
		Message:  "このアカウントは既に登録されています。",
		Category: "user",
		Action:   "ログインしてご利用ください。",
	}
}

// NewUsernameTakenError はユーザー名が既に使われている場合のエラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("ユーザー名は既に使われています: %s", username),
		Category: "user",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewAvailabilityExistsError は空き時間設定が既に存在する場合のエラーを生成する。
func NewAvailabilityExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeAvailabilityExists,
		Message:  "空き時間は既に設定されています。",
		Category: "availability",
		Action:   "既存の設定を更新してください。",
	}
}

// NewBookingConflictError は予約時間が既存の予約と重なる場合のエラーを生成する。
func NewBookingConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeBookingConflict,
		Message:  "指定された時間帯は既に予約されています。",
		Category: "booking",
		Action:   "別の時間帯を選択してください。",
	}
}

// NewConnectionExistsError はユーザー間のつながりが既に存在する場合のエラーを生成する。
func NewConnectionExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeConnectionExists,
		Message:  "このユーザーとのつながりは既に存在します。",
		Category: "connection",
		Action:   "つながり一覧から状態を確認してください。",
	}
}

// --- InvalidState ---

// NewConnectionNotPendingError は申請中でないつながりを承認・拒否しようとした場合のエラーを生成する。
func NewConnectionNotPendingError(status ConnectionStatus) *APIError {
	return &APIError{
		Code:     ErrCodeConnectionNotPending,
		Message:  fmt.Sprintf("つながり申請は処理済みです（現在の状態: %s）。", status),
		Category: "connection",
		Action:   "承認・拒否は申請中のつながりに対してのみ実行できます。",
	}
}

// NewMeetingRequestNotPendingError は申請中でないミーティングリクエストを処理しようとした場合のエラーを生成する。
func NewMeetingRequestNotPendingError(status MeetingRequestStatus) *APIError {
	return &APIError{
		Code:     ErrCodeMeetingRequestNotPending,
		Message:  fmt.Sprintf("ミーティングリクエストは処理済みです（現在の状態: %s）。", status),
		Category: "meeting",
		Action:   "承認・拒否は申請中のリクエストに対してのみ実行できます。",
	}
}

// --- Forbidden ---

// NewNotConnectedError はつながりのないユーザーにミーティングを申請した場合のエラーを生成する。
func NewNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotConnected,
		Message:  "つながりのあるユーザーにのみミーティングを申請できます。",
		Category: "meeting",
		Action:   "先につながり申請を行い、承認されるのを待ってください。",
	}
}

// NewActionForbiddenError は当事者だが操作権限のない場合のエラーを生成する。
func NewActionForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeActionForbidden,
		Message:  reason,
		Category: "auth",
		Action:   "この操作は相手側のユーザーのみ実行できます。",
	}
}
