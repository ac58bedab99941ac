package models

import "time"

// User is created by the external identity provider; signoff only reads it.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}
