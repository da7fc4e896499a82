package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/schedly/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

const eventColumns = `id, user_id, title, description, duration_minutes, is_private, meet_link, created_at, updated_at`

func scanEvent(row rowScanner) (*model.Event, error) {
	event := &model.Event{}
	var description, meetLink sql.NullString
	err := row.Scan(
		&event.ID, &event.UserID, &event.Title, &description, &event.DurationMinutes,
		&event.IsPrivate, &meetLink, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.Description = nullStringValue(description)
	event.MeetLink = nullStringValue(meetLink)
	return event, nil
}

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	if !isUUID(id) {
		return nil, nil
	}
	event, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event by ID: %w", err)
	}
	return event, nil
}

// ListByUserID はユーザーのイベント一覧を作成日時の新しい順で返す。
func (r *PostgresEventRepo) ListByUserID(ctx context.Context, userID string, publicOnly bool) ([]*model.Event, error) {
	if !isUUID(userID) {
		return []*model.Event{}, nil
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE user_id = $1`
	if publicOnly {
		query += ` AND is_private = false`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, user_id, title, description, duration_minutes, is_private, meet_link, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.UserID, event.Title, nullString(event.Description), event.DurationMinutes,
		event.IsPrivate, nullString(event.MeetLink), event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Update はタイトル、説明、所要時間、公開設定を更新する。Meetリンクは変更しない。
func (r *PostgresEventRepo) Update(ctx context.Context, event *model.Event) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events SET title = $2, description = $3, duration_minutes = $4, is_private = $5, updated_at = $6
		 WHERE id = $1`,
		event.ID, event.Title, nullString(event.Description), event.DurationMinutes,
		event.IsPrivate, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return checkRowsAffected(result)
}

// DeleteByID は指定IDのイベントを削除する。予約はCASCADE削除される。
func (r *PostgresEventRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return checkRowsAffected(result)
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
