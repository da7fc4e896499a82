package model

import "time"

// DefaultRejectionReason は拒否理由が省略された場合に保存する文言。
const DefaultRejectionReason = "No reason provided"

// MeetingRequest はつながりのあるユーザー間のミーティング申請を表す。
type MeetingRequest struct {
	ID              string
	RequesterID     string
	ReceiverID      string
	Title           string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	Status          MeetingRequestStatus
	MeetLink        string
	GoogleEventID   string
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MeetingRequestStatus はミーティングリクエストの状態を表す。
type MeetingRequestStatus string

const (
	// MeetingPending は申請中。
	MeetingPending MeetingRequestStatus = "pending"
	// MeetingApproved は承認済み。
	MeetingApproved MeetingRequestStatus = "approved"
	// MeetingRejected は拒否済み。
	MeetingRejected MeetingRequestStatus = "rejected"
	// MeetingCancelled は取り消し済み。遷移する操作は存在しない。
	MeetingCancelled MeetingRequestStatus = "cancelled"
)

// Involves は指定ユーザーが当事者かどうかを返す。
func (m *MeetingRequest) Involves(userID string) bool {
	return m.RequesterID == userID || m.ReceiverID == userID
}
