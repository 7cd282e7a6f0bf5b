package models

// UserSubscription links a telegram chat to transaction event notifications.
type UserSubscription struct {
	UserID   int    `json:"user_id" bson:"user_id"`
	Username string `json:"username" bson:"username"`
	ChatID   int64  `json:"chat_id" bson:"chat_id"`
}
