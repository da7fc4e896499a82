// Package notify は予約やつながりの状態変化をメールで通知する。
//
// サービス層はDispatcherにMessageを渡すだけで処理を終える。
// Messageはキュー（asynq）経由でワーカーに渡され、テンプレート描画と
// SMTP送信が行われる。配送の失敗はサービス層には伝播しない。
package notify

import (
	"time"

	"github.com/hitoshi/schedly/internal/model"
)

// Kind は通知の種別を表す。
type Kind string

const (
	KindBookingCreated      Kind = "booking_created"
	KindConnectionRequested Kind = "connection_requested"
	KindConnectionAccepted  Kind = "connection_accepted"
	KindConnectionRejected  Kind = "connection_rejected"
	KindMeetingRequested    Kind = "meeting_requested"
	KindMeetingApproved     Kind = "meeting_approved"
	KindMeetingRejected     Kind = "meeting_rejected"
)

// Kinds は全ての通知種別。ワーカーのハンドラー登録に使う。
var Kinds = []Kind{
	KindBookingCreated,
	KindConnectionRequested,
	KindConnectionAccepted,
	KindConnectionRejected,
	KindMeetingRequested,
	KindMeetingApproved,
	KindMeetingRejected,
}

// Party は通知の当事者。
type Party struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Message はキューに載せる通知内容。配送に必要な値だけを持ち、
// カレンダーのトークンなどの秘匿情報は含めない。
//
// Fromは操作の起点となった側（予約者、申請者）、Toは相手側（イベント主催者、受信者）。
type Message struct {
	Kind        Kind      `json:"kind"`
	SubjectID   string    `json:"subject_id"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	MeetLink    string    `json:"meet_link,omitempty"`
	Note        string    `json:"note,omitempty"`
	From        Party     `json:"from"`
	To          Party     `json:"to"`
}

func partyOf(u *model.User) Party {
	if u == nil {
		return Party{}
	}
	return Party{ID: u.ID, Name: u.DisplayName(), Email: u.Email}
}

// BookingCreated は予約作成の通知を組み立てる。
// 予約者はBookingに入力された名前とメールアドレスを使う。
func BookingCreated(b *model.Booking, ev *model.Event, owner *model.User) Message {
	return Message{
		Kind:        KindBookingCreated,
		SubjectID:   b.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Start:       b.StartTime,
		End:         b.EndTime,
		MeetLink:    b.MeetLink,
		Note:        b.AdditionalInfo,
		From:        Party{ID: b.UserID, Name: b.Name, Email: b.Email},
		To:          partyOf(owner),
	}
}

// ConnectionRequested はつながり申請の通知を組み立てる。
func ConnectionRequested(c *model.Connection, sender, receiver *model.User) Message {
	return connectionMessage(KindConnectionRequested, c, sender, receiver)
}

// ConnectionAccepted はつながり承認の通知を組み立てる。
func ConnectionAccepted(c *model.Connection, sender, receiver *model.User) Message {
	return connectionMessage(KindConnectionAccepted, c, sender, receiver)
}

// ConnectionRejected はつながり拒否の通知を組み立てる。
func ConnectionRejected(c *model.Connection, sender, receiver *model.User) Message {
	return connectionMessage(KindConnectionRejected, c, sender, receiver)
}

func connectionMessage(kind Kind, c *model.Connection, sender, receiver *model.User) Message {
	return Message{
		Kind:      kind,
		SubjectID: c.ID,
		Note:      c.Message,
		From:      partyOf(sender),
		To:        partyOf(receiver),
	}
}

// MeetingRequested はミーティング申請の通知を組み立てる。
func MeetingRequested(m *model.MeetingRequest, requester, receiver *model.User) Message {
	return meetingMessage(KindMeetingRequested, m, requester, receiver, "")
}

// MeetingApproved はミーティング承認の通知を組み立てる。
func MeetingApproved(m *model.MeetingRequest, requester, receiver *model.User) Message {
	return meetingMessage(KindMeetingApproved, m, requester, receiver, "")
}

// MeetingRejected はミーティング拒否の通知を組み立てる。Noteに拒否理由を入れる。
func MeetingRejected(m *model.MeetingRequest, requester, receiver *model.User) Message {
	return meetingMessage(KindMeetingRejected, m, requester, receiver, m.RejectionReason)
}

func meetingMessage(kind Kind, m *model.MeetingRequest, requester, receiver *model.User, note string) Message {
	return Message{
		Kind:        kind,
		SubjectID:   m.ID,
		Title:       m.Title,
		Description: m.Description,
		Start:       m.StartTime,
		End:         m.EndTime,
		MeetLink:    m.MeetLink,
		Note:        note,
		From:        partyOf(requester),
		To:          partyOf(receiver),
	}
}
