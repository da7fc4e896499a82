package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/schedly/internal/model"
)

// PostgresConnectionRepo はPostgreSQLを使用したつながりリポジトリ。
type PostgresConnectionRepo struct {
	db *sql.DB
}

// NewPostgresConnectionRepo はPostgresConnectionRepoを生成する。
func NewPostgresConnectionRepo(db *sql.DB) *PostgresConnectionRepo {
	return &PostgresConnectionRepo{db: db}
}

const connectionColumns = `id, sender_id, receiver_id, status, message, connected_at, created_at, updated_at`

// connectionDetailQuery は当事者のユーザー情報を結合して取得する。
const connectionDetailQuery = `SELECT c.id, c.sender_id, c.receiver_id, c.status, c.message, c.connected_at,
	c.created_at, c.updated_at,
	s.name, s.email, s.username, s.image_url,
	r.name, r.email, r.username, r.image_url
FROM connections c
JOIN users s ON s.id = c.sender_id
JOIN users r ON r.id = c.receiver_id`

func scanConnection(row rowScanner) (*model.Connection, error) {
	c := &model.Connection{}
	var status string
	var message sql.NullString
	var connectedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.SenderID, &c.ReceiverID, &status, &message, &connectedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ConnectionStatus(status)
	c.Message = nullStringValue(message)
	if connectedAt.Valid {
		t := connectedAt.Time
		c.ConnectedAt = &t
	}
	return c, nil
}

func (r *PostgresConnectionRepo) listDetails(ctx context.Context, where string, args ...any) ([]*model.ConnectionDetail, error) {
	rows, err := r.db.QueryContext(ctx, connectionDetailQuery+` WHERE `+where+` ORDER BY c.created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	details := make([]*model.ConnectionDetail, 0)
	for rows.Next() {
		d := &model.ConnectionDetail{Sender: &model.User{}, Receiver: &model.User{}}
		var status string
		var message, sUsername, sImage, rUsername, rImage sql.NullString
		var connectedAt sql.NullTime
		err := rows.Scan(
			&d.ID, &d.SenderID, &d.ReceiverID, &status, &message, &connectedAt, &d.CreatedAt, &d.UpdatedAt,
			&d.Sender.Name, &d.Sender.Email, &sUsername, &sImage,
			&d.Receiver.Name, &d.Receiver.Email, &rUsername, &rImage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		d.Status = model.ConnectionStatus(status)
		d.Message = nullStringValue(message)
		if connectedAt.Valid {
			t := connectedAt.Time
			d.ConnectedAt = &t
		}
		d.Sender.ID = d.SenderID
		d.Sender.Username = nullStringValue(sUsername)
		d.Sender.ImageURL = nullStringValue(sImage)
		d.Receiver.ID = d.ReceiverID
		d.Receiver.Username = nullStringValue(rUsername)
		d.Receiver.ImageURL = nullStringValue(rImage)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}
	return details, nil
}

// FindByID は指定IDのつながりを取得する。見つからない場合はnilを返す。
func (r *PostgresConnectionRepo) FindByID(ctx context.Context, id string) (*model.Connection, error) {
	if !isUUID(id) {
		return nil, nil
	}
	c, err := scanConnection(r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find connection by ID: %w", err)
	}
	return c, nil
}

// FindBetween は方向を問わず2ユーザー間のつながりを取得する。見つからない場合はnilを返す。
func (r *PostgresConnectionRepo) FindBetween(ctx context.Context, userA, userB string) (*model.Connection, error) {
	if !isUUID(userA) || !isUUID(userB) {
		return nil, nil
	}
	c, err := scanConnection(r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)`,
		userA, userB,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find connection between users: %w", err)
	}
	return c, nil
}

// ExistsAccepted は方向を問わず2ユーザー間に承認済みのつながりがあるかを返す。
func (r *PostgresConnectionRepo) ExistsAccepted(ctx context.Context, userA, userB string) (bool, error) {
	if !isUUID(userA) || !isUUID(userB) {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM connections
			WHERE status = 'accepted'
			  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		)`,
		userA, userB,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check accepted connection: %w", err)
	}
	return exists, nil
}

// Create はつながりを作成する。同じ組のつながりが既にある場合はErrDuplicateを返す。
func (r *PostgresConnectionRepo) Create(ctx context.Context, c *model.Connection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connections (id, sender_id, receiver_id, status, message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.SenderID, c.ReceiverID, string(c.Status), nullString(c.Message), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to insert connection", err)
	}
	return nil
}

// UpdateStatusIf は現在の状態がexpectedの場合のみ状態とconnected_atを更新する。
func (r *PostgresConnectionRepo) UpdateStatusIf(ctx context.Context, c *model.Connection, expected model.ConnectionStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE connections SET status = $2, connected_at = $3, updated_at = $4
		 WHERE id = $1 AND status = $5`,
		c.ID, string(c.Status), c.ConnectedAt, c.UpdatedAt, string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update connection status: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateStatus は現在の状態にかかわらず状態を更新する。
func (r *PostgresConnectionRepo) UpdateStatus(ctx context.Context, c *model.Connection) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE connections SET status = $2, updated_at = $3 WHERE id = $1`,
		c.ID, string(c.Status), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	return checkRowsAffected(result)
}

// DeleteByID は指定IDのつながりを削除する。
func (r *PostgresConnectionRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return checkRowsAffected(result)
}

// ListAccepted はユーザーが送信側・受信側いずれかの承認済みつながりを返す。
func (r *PostgresConnectionRepo) ListAccepted(ctx context.Context, userID string) ([]*model.ConnectionDetail, error) {
	return r.listDetails(ctx,
		`c.status = 'accepted' AND (c.sender_id = $1 OR c.receiver_id = $1)`,
		userID,
	)
}

// ListBySender はユーザーが送信した指定状態のつながりを返す。
func (r *PostgresConnectionRepo) ListBySender(ctx context.Context, userID string, status model.ConnectionStatus) ([]*model.ConnectionDetail, error) {
	return r.listDetails(ctx, `c.sender_id = $1 AND c.status = $2`, userID, string(status))
}

// ListByReceiver はユーザーが受信した指定状態のつながりを返す。
func (r *PostgresConnectionRepo) ListByReceiver(ctx context.Context, userID string, status model.ConnectionStatus) ([]*model.ConnectionDetail, error) {
	return r.listDetails(ctx, `c.receiver_id = $1 AND c.status = $2`, userID, string(status))
}

// compile-time interface check
var _ ConnectionRepository = (*PostgresConnectionRepo)(nil)
