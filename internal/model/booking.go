package model

import "time"

// Booking はイベントに対する予約を表す。
// MeetLinkは予約時点のイベントのMeetLinkを複製したもの。
type Booking struct {
	ID             string
	EventID        string
	UserID         string
	Name           string
	Email          string
	AdditionalInfo string
	StartTime      time.Time
	EndTime        time.Time
	MeetLink       string
	GoogleEventID  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
