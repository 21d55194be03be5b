package domain

import "time"

// NotificationType 通知级别（与前端 toast 类型一致）
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification 通知记录（append-only，Read 只能 false -> true）
// UserID 为空表示广播
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id,omitempty"`
	Type      NotificationType `json:"type,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
}

// VisibleTo reports whether the notification is addressed to userID or broadcast.
func (n *Notification) VisibleTo(userID string) bool {
	return n.UserID == "" || n.UserID == userID
}

// NotificationDraft 待追加的通知（id/timestamp/read 由 ledger 生成）
type NotificationDraft struct {
	UserID  string
	Type    NotificationType
	Title   string
	Message string
}
