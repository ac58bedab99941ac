package models

import "time"

// Device is a notification endpoint. PushToken is unique across users.
type Device struct {
	ID        int64
	UserID    string
	Name      string
	PushToken string
	CreatedAt time.Time
}
