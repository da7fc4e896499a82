package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/schedly/internal/model"
)

// PostgresBookingRepo はPostgreSQLを使用した予約リポジトリ。
type PostgresBookingRepo struct {
	db *sql.DB
}

// NewPostgresBookingRepo はPostgresBookingRepoを生成する。
func NewPostgresBookingRepo(db *sql.DB) *PostgresBookingRepo {
	return &PostgresBookingRepo{db: db}
}

const bookingColumns = `id, event_id, user_id, name, email, additional_info, start_time, end_time,
	meet_link, google_event_id, created_at, updated_at`

// overlapQuery は閉区間の重なり判定。端点が接する予約も重なりとして扱う。
// $1: event_id, $2: 新しい開始時刻, $3: 新しい終了時刻, $4: 除外する予約ID（NULL可）
const overlapQuery = `SELECT EXISTS (
	SELECT 1 FROM bookings
	WHERE event_id = $1
	  AND start_time <= $3
	  AND end_time >= $2
	  AND ($4::uuid IS NULL OR id <> $4::uuid)
)`

func scanBooking(row rowScanner) (*model.Booking, error) {
	b := &model.Booking{}
	var info, meetLink, googleEventID sql.NullString
	err := row.Scan(
		&b.ID, &b.EventID, &b.UserID, &b.Name, &b.Email, &info, &b.StartTime, &b.EndTime,
		&meetLink, &googleEventID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.AdditionalInfo = nullStringValue(info)
	b.MeetLink = nullStringValue(meetLink)
	b.GoogleEventID = nullStringValue(googleEventID)
	return b, nil
}

func (r *PostgresBookingRepo) list(ctx context.Context, query string, args ...any) ([]*model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
func (r *PostgresBookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if !isUUID(id) {
		return nil, nil
	}
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return b, nil
}

// ListByUserID はユーザーが行った予約を開始時刻順で返す。
func (r *PostgresBookingRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Booking, error) {
	return r.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY start_time`,
		userID,
	)
}

// ListByEventID はイベントの予約を開始時刻順で返す。
func (r *PostgresBookingRepo) ListByEventID(ctx context.Context, eventID string) ([]*model.Booking, error) {
	return r.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE event_id = $1 ORDER BY start_time`,
		eventID,
	)
}

// ListByUserIDInRange は [start, end] に完全に含まれるユーザーの予約を開始時刻順で返す。
func (r *PostgresBookingRepo) ListByUserIDInRange(ctx context.Context, userID string, start, end time.Time) ([]*model.Booking, error) {
	return r.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_id = $1 AND start_time >= $2 AND end_time <= $3
		 ORDER BY start_time`,
		userID, start, end,
	)
}

// CreateIfNoConflict は同じイベントの既存予約と重ならない場合のみ予約を作成する。
// イベント行をFOR UPDATEでロックし、同一イベントへの同時予約を直列化する。
func (r *PostgresBookingRepo) CreateIfNoConflict(ctx context.Context, b *model.Booking) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockEvent(ctx, tx, b.EventID); err != nil {
		return false, err
	}

	conflict, err := hasOverlap(ctx, tx, b, false)
	if err != nil {
		return false, err
	}
	if conflict {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookings (id, event_id, user_id, name, email, additional_info, start_time, end_time,
		                       meet_link, google_event_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.EventID, b.UserID, b.Name, b.Email, nullString(b.AdditionalInfo), b.StartTime, b.EndTime,
		nullString(b.MeetLink), nullString(b.GoogleEventID), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// UpdateIfNoConflict は自身を除く同じイベントの予約と重ならない場合のみ予約を更新する。
func (r *PostgresBookingRepo) UpdateIfNoConflict(ctx context.Context, b *model.Booking) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockEvent(ctx, tx, b.EventID); err != nil {
		return false, err
	}

	conflict, err := hasOverlap(ctx, tx, b, true)
	if err != nil {
		return false, err
	}
	if conflict {
		return false, nil
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET name = $2, email = $3, additional_info = $4, start_time = $5, end_time = $6,
		        meet_link = $7, updated_at = $8
		 WHERE id = $1`,
		b.ID, b.Name, b.Email, nullString(b.AdditionalInfo), b.StartTime, b.EndTime,
		nullString(b.MeetLink), b.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update booking: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// lockEvent はイベント行を排他ロックする。イベントが存在しない場合はErrNotFoundを返す。
func lockEvent(ctx context.Context, tx *sql.Tx, eventID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock event: %w", err)
	}
	return nil
}

// hasOverlap は同じイベントに重なる予約があるかを判定する。excludeSelfがtrueなら自身を除く。
func hasOverlap(ctx context.Context, tx *sql.Tx, b *model.Booking, excludeSelf bool) (bool, error) {
	var exclude sql.NullString
	if excludeSelf {
		exclude = nullString(b.ID)
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, overlapQuery, b.EventID, b.StartTime, b.EndTime, exclude).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check booking overlap: %w", err)
	}
	return exists, nil
}

// DeleteByID は指定IDの予約を削除する。
func (r *PostgresBookingRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return checkRowsAffected(result)
}

// compile-time interface check
var _ BookingRepository = (*PostgresBookingRepo)(nil)
