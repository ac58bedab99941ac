package models

import "time"

type Package struct {
	ID        int64
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

type PackageMember struct {
	PackageID   int64
	UserID      string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}
