package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/signoff/internal/dbx"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/approvals"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/devices"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/groups"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/packages"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/requests"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either a *sql.DB or a
// *sql.Tx, so services decide the transaction boundary.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	MigrationStatus(context.Context, *sql.DB) error

	Users(db dbx.DBTX) users.Repository
	Devices(db dbx.DBTX) devices.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	Packages(db dbx.DBTX) packages.Repository
	Groups(db dbx.DBTX) groups.Repository
	Requests(db dbx.DBTX) requests.Repository
	Approvals(db dbx.DBTX) approvals.Repository
}
