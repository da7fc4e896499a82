package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/time/rate"
)

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	RatePerMinute int
	Timeout       time.Duration
}

// EmailRecorder はメール送信のメトリクスを記録する。
type EmailRecorder interface {
	RecordEmailSent()
	RecordEmailFailure()
	RecordEmailLatency(duration time.Duration)
}

// SMTPMailer はgo-mailでSMTP送信するMailer。
// 送信レートをrate.Limiterで制限する。
type SMTPMailer struct {
	cfg      SMTPConfig
	limiter  *rate.Limiter
	recorder EmailRecorder
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(cfg SMTPConfig, recorder EmailRecorder) *SMTPMailer {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 60
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPMailer{
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1),
		recorder: recorder,
	}
}

// Send はメールを1通送信する。
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}

	msg, err := m.buildMessage(email)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	start := time.Now()
	err = client.DialAndSendWithContext(ctx, msg)
	if m.recorder != nil {
		m.recorder.RecordEmailLatency(time.Since(start))
	}
	if err != nil {
		if m.recorder != nil {
			m.recorder.RecordEmailFailure()
		}
		return fmt.Errorf("failed to send email: %w", err)
	}

	if m.recorder != nil {
		m.recorder.RecordEmailSent()
	}
	slog.Info("メールを送信しました",
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
	)
	return nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

func (m *SMTPMailer) buildMessage(email Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, email.HTML)

	if email.Invite != nil {
		msg.AttachReadSeeker(email.Invite.Filename, bytes.NewReader(email.Invite.Content),
			mail.WithFileContentType(mail.ContentType("text/calendar; method=REQUEST")),
		)
	}
	return msg, nil
}

// LogMailer は送信せずにログだけを出力するMailer。EMAIL_ENABLED=falseで使う。
type LogMailer struct{}

// Send はメールの宛先と件名をログに出力する。
func (LogMailer) Send(ctx context.Context, email Email) error {
	slog.Info("メール送信は無効です。送信をスキップしました",
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
		slog.Bool("invite", email.Invite != nil),
	)
	return nil
}

// compile-time interface check
var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = LogMailer{}
)
