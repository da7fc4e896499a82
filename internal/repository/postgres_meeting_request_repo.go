package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/schedly/internal/model"
)

// PostgresMeetingRequestRepo はPostgreSQLを使用したミーティングリクエストリポジトリ。
type PostgresMeetingRequestRepo struct {
	db *sql.DB
}

// NewPostgresMeetingRequestRepo はPostgresMeetingRequestRepoを生成する。
func NewPostgresMeetingRequestRepo(db *sql.DB) *PostgresMeetingRequestRepo {
	return &PostgresMeetingRequestRepo{db: db}
}

const meetingRequestColumns = `id, requester_id, receiver_id, title, description, start_time, end_time, status,
	meet_link, google_event_id, rejection_reason, created_at, updated_at`

func scanMeetingRequest(row rowScanner) (*model.MeetingRequest, error) {
	m := &model.MeetingRequest{}
	var status string
	var description, meetLink, googleEventID, reason sql.NullString
	err := row.Scan(
		&m.ID, &m.RequesterID, &m.ReceiverID, &m.Title, &description, &m.StartTime, &m.EndTime, &status,
		&meetLink, &googleEventID, &reason, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = model.MeetingRequestStatus(status)
	m.Description = nullStringValue(description)
	m.MeetLink = nullStringValue(meetLink)
	m.GoogleEventID = nullStringValue(googleEventID)
	m.RejectionReason = nullStringValue(reason)
	return m, nil
}

func (r *PostgresMeetingRequestRepo) list(ctx context.Context, query string, args ...any) ([]*model.MeetingRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list meeting requests: %w", err)
	}
	defer rows.Close()

	reqs := make([]*model.MeetingRequest, 0)
	for rows.Next() {
		m, err := scanMeetingRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting request: %w", err)
		}
		reqs = append(reqs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meeting requests: %w", err)
	}
	return reqs, nil
}

// FindByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresMeetingRequestRepo) FindByID(ctx context.Context, id string) (*model.MeetingRequest, error) {
	if !isUUID(id) {
		return nil, nil
	}
	m, err := scanMeetingRequest(r.db.QueryRowContext(ctx,
		`SELECT `+meetingRequestColumns+` FROM meeting_requests WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find meeting request by ID: %w", err)
	}
	return m, nil
}

// Create はリクエストを作成する。
func (r *PostgresMeetingRequestRepo) Create(ctx context.Context, m *model.MeetingRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO meeting_requests (id, requester_id, receiver_id, title, description, start_time, end_time,
		                               status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.RequesterID, m.ReceiverID, m.Title, nullString(m.Description), m.StartTime, m.EndTime,
		string(m.Status), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert meeting request: %w", err)
	}
	return nil
}

// ResolveIfPending は状態がpendingの場合のみ承認・拒否の結果を保存する。
func (r *PostgresMeetingRequestRepo) ResolveIfPending(ctx context.Context, m *model.MeetingRequest) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE meeting_requests
		 SET status = $2, meet_link = $3, google_event_id = $4, rejection_reason = $5, updated_at = $6
		 WHERE id = $1 AND status = 'pending'`,
		m.ID, string(m.Status), nullString(m.MeetLink), nullString(m.GoogleEventID),
		nullString(m.RejectionReason), m.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve meeting request: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListByRequester はユーザーが送信したリクエストを作成日時の新しい順で返す。
func (r *PostgresMeetingRequestRepo) ListByRequester(ctx context.Context, userID string) ([]*model.MeetingRequest, error) {
	return r.list(ctx,
		`SELECT `+meetingRequestColumns+` FROM meeting_requests WHERE requester_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// ListByReceiver はユーザーが受信したリクエストを作成日時の新しい順で返す。
func (r *PostgresMeetingRequestRepo) ListByReceiver(ctx context.Context, userID string, status model.MeetingRequestStatus) ([]*model.MeetingRequest, error) {
	if status == "" {
		return r.list(ctx,
			`SELECT `+meetingRequestColumns+` FROM meeting_requests WHERE receiver_id = $1 ORDER BY created_at DESC`,
			userID,
		)
	}
	return r.list(ctx,
		`SELECT `+meetingRequestColumns+` FROM meeting_requests
		 WHERE receiver_id = $1 AND status = $2 ORDER BY created_at DESC`,
		userID, string(status),
	)
}

// compile-time interface check
var _ MeetingRequestRepository = (*PostgresMeetingRequestRepo)(nil)
