package model

import "time"

// Connection はユーザー間のつながりを表す。
// 同じ2人の間には方向を問わず1件しか存在しない。
type Connection struct {
	ID          string
	SenderID    string
	ReceiverID  string
	Status      ConnectionStatus
	Message     string
	ConnectedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConnectionStatus はつながりの状態を表す。
type ConnectionStatus string

const (
	// ConnectionPending は申請中。
	ConnectionPending ConnectionStatus = "pending"
	// ConnectionAccepted は承認済み。
	ConnectionAccepted ConnectionStatus = "accepted"
	// ConnectionRejected は拒否済み。
	ConnectionRejected ConnectionStatus = "rejected"
	// ConnectionBlocked はブロック済み。
	ConnectionBlocked ConnectionStatus = "blocked"
)

// Involves は指定ユーザーが当事者かどうかを返す。
func (c *Connection) Involves(userID string) bool {
	return c.SenderID == userID || c.ReceiverID == userID
}

// ConnectionDetail は当事者のユーザー情報を含むつながり。
type ConnectionDetail struct {
	Connection
	Sender   *User
	Receiver *User
}
