package ctl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/signoff/internal/dbx"
	"github.com/dmitrijs2005/signoff/internal/logging"
	"github.com/dmitrijs2005/signoff/internal/server"
	"github.com/dmitrijs2005/signoff/internal/server/config"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/notify"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/signoff/internal/server/services"
	"github.com/redis/go-redis/v9"
)

const drainTimeout = 10 * time.Second

// Deployment is the Backend of a live installation. Redis and the
// notification sinks are connected only when a request command runs, so
// migrations and user provisioning need nothing but the database.
type Deployment struct {
	cfg         *config.Config
	log         logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	users       *services.UserService

	rdb        *redis.Client
	dispatcher *notify.Dispatcher
	requests   *services.RequestService
	quorum     *services.QuorumEngine
}

// OpenDeployment returns an Opener bound to cfg.
func OpenDeployment(cfg *config.Config) Opener {
	return func(ctx context.Context) (Backend, error) {
		db, err := dbx.Open(ctx, "pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		m, err := repomanager.NewPostgresRepositoryManager(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db init error: %w", err)
		}

		return &Deployment{
			cfg:         cfg,
			log:         logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel).With("module", "signoffctl"),
			db:          db,
			repomanager: m,
			users:       services.NewUserService(db, m, cfg),
		}, nil
	}
}

func (d *Deployment) Migrate(ctx context.Context) error {
	return d.repomanager.RunMigrations(ctx, d.db)
}

func (d *Deployment) MigrationStatus(ctx context.Context) error {
	return d.repomanager.MigrationStatus(ctx, d.db)
}

func (d *Deployment) CreateUser(ctx context.Context, email, displayName string) (*models.User, error) {
	return d.users.CreateUser(ctx, email, displayName)
}

func (d *Deployment) IssueToken(u *models.User, validity time.Duration) (string, error) {
	return d.users.IssueToken(u, validity)
}

func (d *Deployment) GetRequest(ctx context.Context, requestID int64) (*models.ApprovalRequest, error) {
	return d.repomanager.Requests(d.db).Get(ctx, requestID)
}

func (d *Deployment) RejectRequest(ctx context.Context, actingUserID string, requestID int64) (*models.ApprovalRequest, error) {
	if err := d.connectLifecycle(ctx); err != nil {
		return nil, err
	}
	return d.requests.Reject(ctx, actingUserID, requestID)
}

func (d *Deployment) EvaluateRequest(ctx context.Context, requestID int64) (*models.Evaluation, error) {
	if err := d.connectLifecycle(ctx); err != nil {
		return nil, err
	}
	return d.quorum.Evaluate(ctx, requestID)
}

// connectLifecycle builds the request services with the same sinks the
// server uses, so decisions taken here notify members too.
func (d *Deployment) connectLifecycle(ctx context.Context) error {
	if d.requests != nil {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: d.cfg.RedisAddr, Password: d.cfg.RedisPassword, DB: d.cfg.RedisDB})
	sinks, _, err := server.BuildSinks(ctx, d.cfg, rdb, services.NewDirectory(d.db, d.repomanager))
	if err != nil {
		_ = rdb.Close()
		return err
	}

	d.rdb = rdb
	d.dispatcher = notify.NewDispatcher(d.log, d.cfg.NotifyQueueSize, sinks...)
	d.requests = services.NewRequestService(d.db, d.repomanager, d.dispatcher, d.log)
	d.quorum = services.NewQuorumEngine(d.db, d.repomanager, d.requests)
	return nil
}

// Close drains pending notifications before dropping connections.
func (d *Deployment) Close() error {
	var errs []error
	if d.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		errs = append(errs, d.dispatcher.Close(ctx))
	}
	if d.rdb != nil {
		errs = append(errs, d.rdb.Close())
	}
	errs = append(errs, d.db.Close())
	return errors.Join(errs...)
}
