// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// FirebaseUIDとEmailは一意。Usernameは未設定を許容し、設定時のみ一意。
type User struct {
	ID          string
	FirebaseUID string
	Email       string
	Username    string
	Name        string
	ImageURL    string
	PhoneNumber string
	Calendar    CalendarCredential
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CalendarCredential はGoogleカレンダーAPIへのアクセストークン一式を表す。
type CalendarCredential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// IsZero は資格情報が保存されていないかどうかを返す。
func (c CalendarCredential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// HasCalendar はGoogleカレンダー連携済みかどうかを返す。
func (u *User) HasCalendar() bool {
	return !u.Calendar.IsZero()
}

// DisplayName は通知などで使う表示名を返す。名前が未設定ならメールアドレスを使う。
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Identity はIDトークン検証で得られた認証主体を表す。
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}
