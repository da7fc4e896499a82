package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Email は送信する1通のメール。
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Invite  *Invite
}

// Invite はメールに添付するカレンダー招待。
type Invite struct {
	Filename string
	Content  []byte
}

// Mailer はメールを送信する。
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// Sanitizer はユーザー入力のHTMLを安全なHTMLに変換する。
// StripTagsは件名のようにHTMLとして扱われない箇所のためにタグを全て除去する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
	StripTags(raw string) string
}

// emailData はテンプレートに渡す値。
type emailData struct {
	Subject     string
	Heading     string
	Recipient   string
	Counterpart string
	Title       string
	When        string
	MeetLink    string
	Description template.HTML
	Note        template.HTML
	ActionURL   string
}

// EmailDeliverer は通知をメールとして組み立てて送信するDeliverer。
type EmailDeliverer struct {
	mailer    Mailer
	sanitizer Sanitizer
	location  *time.Location
	baseURL   string
	now       func() time.Time
}

// NewEmailDeliverer はEmailDelivererを生成する。locはメール本文の日時表記に使う。
func NewEmailDeliverer(mailer Mailer, sanitizer Sanitizer, loc *time.Location, baseURL string) *EmailDeliverer {
	if loc == nil {
		loc = time.Local
	}
	return &EmailDeliverer{
		mailer:    mailer,
		sanitizer: sanitizer,
		location:  loc,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}
}

// Deliver は通知に対応するメールを全て送信する。
// 一部の宛先で失敗した場合もほかの宛先への送信は続け、失敗をまとめて返す。
func (d *EmailDeliverer) Deliver(ctx context.Context, msg Message) error {
	emails, err := d.Compose(msg)
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range emails {
		if err := d.mailer.Send(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s へのメール送信に失敗しました: %w", e.To, err))
		}
	}
	return errors.Join(errs...)
}

// Compose は通知種別ごとのメールを組み立てる。宛先のメールアドレスが空のものは含めない。
func (d *EmailDeliverer) Compose(msg Message) ([]Email, error) {
	var specs []emailSpec

	switch msg.Kind {
	case KindBookingCreated:
		specs = []emailSpec{
			{
				to: msg.From, counterpart: msg.To, template: "booking_confirmed.html",
				subject: "Booking Confirmed: " + msg.Title, heading: "Your booking is confirmed",
				invite: "event.ics", path: "/bookings",
			},
			{
				to: msg.To, counterpart: msg.From, template: "booking_received.html",
				subject: fmt.Sprintf("New Booking: %s - %s", msg.From.Name, msg.Title), heading: "You have a new booking",
				path: "/bookings",
			},
		}
	case KindConnectionRequested:
		specs = []emailSpec{{
			to: msg.To, counterpart: msg.From, template: "connection_requested.html",
			subject: "Connection Request from " + msg.From.Name, heading: "New connection request",
			path: "/connections",
		}}
	case KindConnectionAccepted:
		specs = []emailSpec{
			{
				to: msg.From, counterpart: msg.To, template: "connection_accepted.html",
				subject: msg.To.Name + " accepted your connection request", heading: "Connection accepted",
				path: "/connections",
			},
			{
				to: msg.To, counterpart: msg.From, template: "connection_accepted.html",
				subject: "You're now connected with " + msg.From.Name, heading: "You're connected",
				path: "/connections",
			},
		}
	case KindConnectionRejected:
		specs = []emailSpec{{
			to: msg.From, counterpart: msg.To, template: "connection_rejected.html",
			subject: "Connection request declined", heading: "Connection request declined",
		}}
	case KindMeetingRequested:
		specs = []emailSpec{{
			to: msg.To, counterpart: msg.From, template: "meeting_requested.html",
			subject: "Meeting Request from " + msg.From.Name, heading: "New meeting request",
			path: "/meetings",
		}}
	case KindMeetingApproved:
		specs = []emailSpec{
			{
				to: msg.From, counterpart: msg.To, template: "meeting_approved.html",
				subject: "Meeting Approved: " + msg.Title, heading: "Your meeting request was approved",
				invite: "meeting.ics", path: "/meetings",
			},
			{
				to: msg.To, counterpart: msg.From, template: "meeting_approved.html",
				subject: "Meeting Confirmed: " + msg.Title, heading: "Meeting confirmed",
				invite: "meeting.ics", path: "/meetings",
			},
		}
	case KindMeetingRejected:
		specs = []emailSpec{{
			to: msg.From, counterpart: msg.To, template: "meeting_rejected.html",
			subject: "Meeting Request Declined: " + msg.Title, heading: "Meeting request declined",
		}}
	default:
		return nil, fmt.Errorf("unknown notification kind: %q", msg.Kind)
	}

	emails := make([]Email, 0, len(specs))
	for _, spec := range specs {
		if spec.to.Email == "" {
			continue
		}
		e, err := d.render(msg, spec)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, nil
}

// emailSpec は1通分の宛先とテンプレートの組み合わせ。
type emailSpec struct {
	to          Party
	counterpart Party
	template    string
	subject     string
	heading     string
	invite      string
	path        string
}

func (d *EmailDeliverer) render(msg Message, spec emailSpec) (Email, error) {
	subject := d.plainText(spec.subject)
	data := emailData{
		Subject:     subject,
		Heading:     spec.heading,
		Recipient:   nameOrEmail(spec.to),
		Counterpart: nameOrEmail(spec.counterpart),
		Title:       msg.Title,
		When:        d.formatRange(msg.Start, msg.End),
		MeetLink:    msg.MeetLink,
		Description: d.sanitize(msg.Description),
		Note:        d.sanitize(msg.Note),
	}
	if spec.path != "" && d.baseURL != "" {
		data.ActionURL = d.baseURL + spec.path
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, spec.template, data); err != nil {
		return Email{}, fmt.Errorf("failed to render %s: %w", spec.template, err)
	}

	text, err := htmlToText(buf.String())
	if err != nil {
		return Email{}, fmt.Errorf("failed to build text body: %w", err)
	}

	e := Email{
		To:      spec.to.Email,
		Subject: subject,
		HTML:    buf.String(),
		Text:    text,
	}

	if spec.invite != "" && !msg.Start.IsZero() {
		content := buildInvite(inviteParams{
			UID:         msg.SubjectID + "@schedly",
			Summary:     msg.Title,
			Description: msg.Description,
			Location:    msg.MeetLink,
			Start:       msg.Start,
			End:         msg.End,
			Organizer:   msg.To,
			Attendees:   []Party{msg.From, msg.To},
			Stamp:       d.now(),
		})
		e.Invite = &Invite{Filename: spec.invite, Content: content}
	}

	return e, nil
}

// sanitize はユーザー入力をメール本文に埋め込めるHTMLに変換する。
// 改行は<br>として残し、それ以外のタグはサニタイザーのポリシーに従う。
func (d *EmailDeliverer) sanitize(s string) template.HTML {
	if s == "" {
		return ""
	}
	if d.sanitizer == nil {
		return template.HTML(strings.ReplaceAll(template.HTMLEscapeString(s), "\n", "<br>"))
	}
	return template.HTML(d.sanitizer.Sanitize(strings.ReplaceAll(s, "\n", "<br>")))
}

// plainText は件名に含まれるユーザー入力からタグを除去する。
func (d *EmailDeliverer) plainText(s string) string {
	if d.sanitizer == nil {
		return s
	}
	return d.sanitizer.StripTags(s)
}

func (d *EmailDeliverer) formatRange(start, end time.Time) string {
	if start.IsZero() {
		return ""
	}
	start = start.In(d.location)
	s := start.Format("Mon, Jan 2, 2006 15:04")
	if end.IsZero() {
		return s + " " + start.Format("MST")
	}
	end = end.In(d.location)
	if end.YearDay() == start.YearDay() && end.Year() == start.Year() {
		return fmt.Sprintf("%s - %s %s", s, end.Format("15:04"), end.Format("MST"))
	}
	return fmt.Sprintf("%s - %s %s", s, end.Format("Mon, Jan 2, 2006 15:04"), end.Format("MST"))
}

func nameOrEmail(p Party) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// compile-time interface check
var _ Deliverer = (*EmailDeliverer)(nil)
