package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/schedly/internal/model"
)

// PostgresAvailabilityRepo はPostgreSQLを使用した空き時間リポジトリ。
type PostgresAvailabilityRepo struct {
	db *sql.DB
}

// NewPostgresAvailabilityRepo はPostgresAvailabilityRepoを生成する。
func NewPostgresAvailabilityRepo(db *sql.DB) *PostgresAvailabilityRepo {
	return &PostgresAvailabilityRepo{db: db}
}

// FindByUserID はユーザーの空き時間設定を時間帯込みで取得する。見つからない場合はnilを返す。
// 時間帯は開始時刻順に並ぶ。
func (r *PostgresAvailabilityRepo) FindByUserID(ctx context.Context, userID string) (*model.Availability, error) {
	if !isUUID(userID) {
		return nil, nil
	}

	a := &model.Availability{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, gap_minutes, created_at, updated_at FROM availabilities WHERE user_id = $1`,
		userID,
	).Scan(&a.ID, &a.UserID, &a.GapMinutes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find availability: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, availability_id, day_of_week, start_minute, end_minute
		 FROM day_availabilities WHERE availability_id = $1
		 ORDER BY start_minute, id`,
		a.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list day availabilities: %w", err)
	}
	defer rows.Close()

	a.Days = make([]model.DayAvailability, 0)
	for rows.Next() {
		var d model.DayAvailability
		var day string
		var start, end int
		if err := rows.Scan(&d.ID, &d.AvailabilityID, &day, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan day availability: %w", err)
		}
		d.Day = model.DayOfWeek(day)
		d.Start = model.TimeOfDay(start)
		d.End = model.TimeOfDay(end)
		a.Days = append(a.Days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate day availabilities: %w", err)
	}

	return a, nil
}

// Create は空き時間設定と時間帯を同一トランザクションで作成する。
func (r *PostgresAvailabilityRepo) Create(ctx context.Context, a *model.Availability) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO availabilities (id, user_id, gap_minutes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.UserID, a.GapMinutes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to insert availability", err)
	}

	if err := insertDays(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Replace は間隔を更新し、時間帯を全件削除してから再作成する。
func (r *PostgresAvailabilityRepo) Replace(ctx context.Context, a *model.Availability) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE availabilities SET gap_minutes = $2, updated_at = $3 WHERE id = $1`,
		a.ID, a.GapMinutes, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update availability: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM day_availabilities WHERE availability_id = $1`, a.ID,
	); err != nil {
		return fmt.Errorf("failed to delete day availabilities: %w", err)
	}

	if err := insertDays(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertDays はトランザクション内で時間帯を挿入する。
func insertDays(ctx context.Context, tx *sql.Tx, a *model.Availability) error {
	for _, d := range a.Days {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO day_availabilities (id, availability_id, day_of_week, start_minute, end_minute)
			 VALUES ($1, $2, $3, $4, $5)`,
			d.ID, a.ID, string(d.Day), int(d.Start), int(d.End),
		)
		if err != nil {
			return fmt.Errorf("failed to insert day availability: %w", err)
		}
	}
	return nil
}

// DeleteByUserID はユーザーの空き時間設定を削除する。
func (r *PostgresAvailabilityRepo) DeleteByUserID(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM availabilities WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete availability: %w", err)
	}
	return checkRowsAffected(result)
}

// compile-time interface check
var _ AvailabilityRepository = (*PostgresAvailabilityRepo)(nil)
