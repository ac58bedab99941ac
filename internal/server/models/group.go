package models

import "time"

type ApprovalGroup struct {
	ID        int64
	PackageID int64
	Name      string
	CreatedAt time.Time
}

// GroupMember carries PackageID so storage can enforce one group per user
// per package.
type GroupMember struct {
	GroupID     int64
	PackageID   int64
	UserID      string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}
