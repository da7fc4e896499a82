package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/schedly/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, firebase_uid, email, username, name, image_url, phone_number,
	google_access_token, google_refresh_token, google_token_expiry, created_at, updated_at`

// scanUser は1行分のユーザーを読み取る。
func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var username, imageURL, phone, accessToken, refreshToken sql.NullString
	var expiry sql.NullTime
	err := row.Scan(
		&user.ID, &user.FirebaseUID, &user.Email, &username, &user.Name, &imageURL, &phone,
		&accessToken, &refreshToken, &expiry, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Username = nullStringValue(username)
	user.ImageURL = nullStringValue(imageURL)
	user.PhoneNumber = nullStringValue(phone)
	user.Calendar = model.CalendarCredential{
		AccessToken:  nullStringValue(accessToken),
		RefreshToken: nullStringValue(refreshToken),
		Expiry:       nullTimeValue(expiry),
	}
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.findOne(ctx, "id = $1", id)
}

// FindByFirebaseUID は認証主体IDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByFirebaseUID(ctx context.Context, uid string) (*model.User, error) {
	return r.findOne(ctx, "firebase_uid = $1", uid)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email = $1", email)
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username = $1", username)
}

// Create はユーザーを作成する。一意制約違反の場合はErrDuplicateを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, firebase_uid, email, username, name, image_url, phone_number, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.FirebaseUID, user.Email, nullString(user.Username), user.Name,
		nullString(user.ImageURL), nullString(user.PhoneNumber), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to insert user", err)
	}
	return nil
}

// UpdateProfile は名前、ユーザー名、画像URL、電話番号を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, username = $3, image_url = $4, phone_number = $5, updated_at = $6
		 WHERE id = $1`,
		user.ID, user.Name, nullString(user.Username), nullString(user.ImageURL),
		nullString(user.PhoneNumber), user.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to update user", err)
	}
	return checkRowsAffected(result)
}

// UpdateCalendarCredential はGoogleカレンダーのトークンを保存する。
func (r *PostgresUserRepo) UpdateCalendarCredential(ctx context.Context, userID string, cred model.CalendarCredential) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET google_access_token = $2, google_refresh_token = $3, google_token_expiry = $4,
		        updated_at = now()
		 WHERE id = $1`,
		userID, nullString(cred.AccessToken), nullString(cred.RefreshToken), nullTime(cred.Expiry),
	)
	if err != nil {
		return fmt.Errorf("failed to update calendar credential: %w", err)
	}
	return checkRowsAffected(result)
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するイベント、予約、空き時間、つながり、ミーティングリクエストはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return checkRowsAffected(result)
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
