package handler

import (
	"time"

	"github.com/hitoshi/schedly/internal/availability"
	"github.com/hitoshi/schedly/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。カレンダーのトークンは含めない。
type userResponse struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Username          string    `json:"username,omitempty"`
	Name              string    `json:"name"`
	ImageURL          string    `json:"imageUrl,omitempty"`
	PhoneNumber       string    `json:"phoneNumber,omitempty"`
	CalendarConnected bool      `json:"calendarConnected"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:                u.ID,
		Email:             u.Email,
		Username:          u.Username,
		Name:              u.Name,
		ImageURL:          u.ImageURL,
		PhoneNumber:       u.PhoneNumber,
		CalendarConnected: u.HasCalendar(),
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

// userSummary はつながり一覧などに埋め込む相手の情報。
type userSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func toUserSummary(u *model.User) *userSummary {
	if u == nil {
		return nil
	}
	return &userSummary{ID: u.ID, Name: u.Name, Email: u.Email, Username: u.Username, ImageURL: u.ImageURL}
}

type windowResponse struct {
	Day   string `json:"day"`
	Start string `json:"startTime"`
	End   string `json:"endTime"`
}

type availabilityResponse struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	GapMinutes int              `json:"timeGap"`
	Days       []windowResponse `json:"days"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

func toAvailabilityResponse(a *model.Availability) availabilityResponse {
	days := make([]windowResponse, len(a.Days))
	for i, d := range a.Days {
		days[i] = windowResponse{Day: string(d.Day), Start: d.Start.String(), End: d.End.String()}
	}
	return availabilityResponse{
		ID:         a.ID,
		UserID:     a.UserID,
		GapMinutes: a.GapMinutes,
		Days:       days,
		UpdatedAt:  a.UpdatedAt,
	}
}

type slotResponse struct {
	Time string `json:"time"`
}

type daySlotsResponse struct {
	Date  string         `json:"date"`
	Slots []slotResponse `json:"slots"`
}

// toDaySlotsResponse は枠を [{"date":"YYYY-MM-DD","slots":[{"time":"HH:MM"}]}] の形に変換する。
func toDaySlotsResponse(days []availability.DaySlots) []daySlotsResponse {
	out := make([]daySlotsResponse, len(days))
	for i, d := range days {
		slots := make([]slotResponse, len(d.Slots))
		for j, s := range d.Slots {
			slots[j] = slotResponse{Time: s.String()}
		}
		out[i] = daySlotsResponse{Date: d.Date.Format(time.DateOnly), Slots: slots}
	}
	return out
}

type eventResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"`
	IsPrivate   bool      `json:"isPrivate"`
	MeetLink    string    `json:"meetLink"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toEventResponse(e *model.Event) eventResponse {
	return eventResponse{
		ID:          e.ID,
		UserID:      e.UserID,
		Title:       e.Title,
		Description: e.Description,
		Duration:    e.DurationMinutes,
		IsPrivate:   e.IsPrivate,
		MeetLink:    e.MeetLink,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

type bookingResponse struct {
	ID             string    `json:"id"`
	EventID        string    `json:"eventId"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	AdditionalInfo string    `json:"additionalInfo,omitempty"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	MeetLink       string    `json:"meetLink"`
	GoogleEventID  string    `json:"googleEventId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	return bookingResponse{
		ID:             b.ID,
		EventID:        b.EventID,
		UserID:         b.UserID,
		Name:           b.Name,
		Email:          b.Email,
		AdditionalInfo: b.AdditionalInfo,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		MeetLink:       b.MeetLink,
		GoogleEventID:  b.GoogleEventID,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

type connectionResponse struct {
	ID          string       `json:"id"`
	SenderID    string       `json:"senderId"`
	ReceiverID  string       `json:"receiverId"`
	Status      string       `json:"status"`
	Message     string       `json:"message,omitempty"`
	ConnectedAt *time.Time   `json:"connectedAt,omitempty"`
	Sender      *userSummary `json:"sender,omitempty"`
	Receiver    *userSummary `json:"receiver,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func toConnectionResponse(c *model.Connection) connectionResponse {
	return connectionResponse{
		ID:          c.ID,
		SenderID:    c.SenderID,
		ReceiverID:  c.ReceiverID,
		Status:      string(c.Status),
		Message:     c.Message,
		ConnectedAt: c.ConnectedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toConnectionDetailResponses(details []*model.ConnectionDetail) []connectionResponse {
	out := make([]connectionResponse, len(details))
	for i, d := range details {
		out[i] = toConnectionResponse(&d.Connection)
		out[i].Sender = toUserSummary(d.Sender)
		out[i].Receiver = toUserSummary(d.Receiver)
	}
	return out
}

type meetingRequestResponse struct {
	ID              string    `json:"id"`
	RequesterID     string    `json:"requesterId"`
	ReceiverID      string    `json:"receiverId"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	Status          string    `json:"status"`
	MeetLink        string    `json:"meetLink,omitempty"`
	GoogleEventID   string    `json:"googleEventId,omitempty"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toMeetingRequestResponse(m *model.MeetingRequest) meetingRequestResponse {
	return meetingRequestResponse{
		ID:              m.ID,
		RequesterID:     m.RequesterID,
		ReceiverID:      m.ReceiverID,
		Title:           m.Title,
		Description:     m.Description,
		StartTime:       m.StartTime,
		EndTime:         m.EndTime,
		Status:          string(m.Status),
		MeetLink:        m.MeetLink,
		GoogleEventID:   m.GoogleEventID,
		RejectionReason: m.RejectionReason,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// mapSlice はスライスの各要素をレスポンス型に変換する。nilの場合も空配列を返す。
func mapSlice[T any, R any](items []T, fn func(T) R) []R {
	out := make([]R, len(items))
	for i, it := range items {
		out[i] = fn(it)
	}
	return out
}
