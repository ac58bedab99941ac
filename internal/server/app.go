// Package server wires the signoff components together: storage and
// migrations, Redis, the WebAuthn relying party, notification sinks, the
// services and both transports. It also handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/signoff/internal/dbx"
	"github.com/dmitrijs2005/signoff/internal/logging"
	"github.com/dmitrijs2005/signoff/internal/server/auth"
	"github.com/dmitrijs2005/signoff/internal/server/config"
	"github.com/dmitrijs2005/signoff/internal/server/httpapi"
	"github.com/dmitrijs2005/signoff/internal/server/notify"
	"github.com/dmitrijs2005/signoff/internal/server/receipts"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/signoff/internal/server/services"
	"github.com/dmitrijs2005/signoff/internal/server/sessions"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/signoff/internal/server/grpc"
)

const drainTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	dispatcher *notify.Dispatcher
	grpcServer *gs.GRPCServer
	httpServer *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (app *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)

	db, err := dbx.Open(ctx, "pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
	defer func() {
		if err != nil {
			_ = rdb.Close()
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	rp, err := auth.NewWebAuthnRelyingParty(c.RPID, c.RPDisplayName, c.RPOrigins, c.ChallengeTimeout)
	if err != nil {
		return nil, fmt.Errorf("relying party: %w", err)
	}
	deriver, err := auth.NewChallengeDeriver([]byte(c.ChallengeSecret))
	if err != nil {
		return nil, fmt.Errorf("challenge deriver: %w", err)
	}

	directory := services.NewDirectory(db, m)
	sinks, store, err := BuildSinks(ctx, c, rdb, directory)
	if err != nil {
		return nil, err
	}
	dispatcher := notify.NewDispatcher(logger, c.NotifyQueueSize, sinks...)

	packages := services.NewPackageService(db, m)
	groups := services.NewGroupService(db, m)
	devices := services.NewDeviceService(db, m)
	challenges := services.NewChallengeService(db, m, rp, deriver, sessions.NewRedisStore(rdb, c.ChallengeTimeout))
	credentials := services.NewCredentialService(db, m, challenges)
	requests := services.NewRequestService(db, m, dispatcher, logger)
	quorum := services.NewQuorumEngine(db, m, requests)
	endorsements := services.NewEndorsementService(db, m, challenges, quorum, logger)
	receiptLinks := services.NewReceiptService(db, m, store)

	grpcServer, err := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, c.SecretKey, gs.Backends{
		Packages:     packages,
		Groups:       groups,
		Devices:      devices,
		Credentials:  credentials,
		Requests:     requests,
		Endorsements: endorsements,
		Receipts:     receiptLinks,
	})
	if err != nil {
		return nil, err
	}

	httpServer, err := httpapi.NewServer(c.EndpointAddrHTTP, logger, c.SecretKey, packages, requests, db.PingContext)
	if err != nil {
		return nil, err
	}

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		redis:      rdb,
		dispatcher: dispatcher,
		grpcServer: grpcServer,
		httpServer: httpServer,
	}, nil
}

// BuildSinks sets up the notification sinks the configuration enables. Push
// is always on; email needs SMTPHost and receipts need S3Bucket. The receipt
// store is returned for presigned links and is nil when disabled.
func BuildSinks(ctx context.Context, c *config.Config, rdb redis.Cmdable, dir notify.Directory) ([]notify.Sink, receipts.Store, error) {
	push, err := notify.NewPushSink(ctx, rdb, c.PushChannel, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("push sink: %w", err)
	}
	sinks := []notify.Sink{push}

	if c.SMTPHost != "" {
		email, err := notify.NewEmailSink(c, dir)
		if err != nil {
			return nil, nil, fmt.Errorf("email sink: %w", err)
		}
		sinks = append(sinks, email)
	}

	var store receipts.Store
	if c.S3Bucket != "" {
		s3store, err := receipts.NewS3Store(ctx, c)
		if err != nil {
			return nil, nil, fmt.Errorf("receipt store: %w", err)
		}
		sink, err := notify.NewReceiptSink(s3store, dir)
		if err != nil {
			return nil, nil, fmt.Errorf("receipt sink: %w", err)
		}
		store = s3store
		sinks = append(sinks, sink)
	}

	return sinks, store, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := app.grpcServer.Run(ctx); err != nil {
			app.logger.Error(ctx, "grpc server", "error", err)
			cancelFunc()
		}
	}()
	go func() {
		defer wg.Done()
		if err := app.httpServer.Run(ctx); err != nil {
			app.logger.Error(ctx, "http server", "error", err)
			cancelFunc()
		}
	}()

	wg.Wait()

	app.shutdown()
}

// shutdown drains pending notifications and releases connections.
func (app *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := app.dispatcher.Close(ctx); err != nil {
		app.logger.Warn(ctx, "notifications not drained", "error", err)
	}
	if err := errors.Join(app.redis.Close(), app.db.Close()); err != nil {
		app.logger.Warn(ctx, "closing connections", "error", err)
	}

	app.logger.Info(ctx, "Stopped")
}
