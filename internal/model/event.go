package model

import "time"

// DefaultEventDurationMinutes はイベント作成時に所要時間が省略された場合の値。
const DefaultEventDurationMinutes = 30

// Event は予約を受け付けるイベントを表す。
// MeetLinkは作成時に一度だけ発行され、全ての予約で共有される。
type Event struct {
	ID              string
	UserID          string
	Title           string
	Description     string
	DurationMinutes int
	IsPrivate       bool
	MeetLink        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration は所要時間をtime.Durationで返す。
func (e *Event) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}
