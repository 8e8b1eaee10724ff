package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/sentinel/internal/core/config"
	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/core/ledger"
	"github.com/vietddude/sentinel/internal/core/queue"
	"github.com/vietddude/sentinel/internal/core/scheduler"
	"github.com/vietddude/sentinel/internal/health"
	"github.com/vietddude/sentinel/internal/intake"
	"github.com/vietddude/sentinel/internal/infra/chain"
	"github.com/vietddude/sentinel/internal/infra/chain/evm"
	redisclient "github.com/vietddude/sentinel/internal/infra/redis"
	"github.com/vietddude/sentinel/internal/infra/rpc"
	"github.com/vietddude/sentinel/internal/infra/storage/file"
	"github.com/vietddude/sentinel/internal/infra/storage/postgres"
)

// Config holds the application configuration.
type Config struct {
	Port              int
	Chains            []config.ChainConfig
	QueueFile         string
	StateFile         string
	MaxFeeGwei        uint64
	PollInterval      time.Duration
	Jitter            time.Duration
	SaveEveryAttempts uint64
	Redis             redisclient.Config
	Database          postgres.Config
	IntakeEnabled     bool
}

// Sentinel is the main application struct that manages the sentinel lifecycle.
type Sentinel struct {
	cfg          Config
	queue        *queue.PersistentQueue
	ledger       *ledger.BroadcastLedger
	sched        *scheduler.Scheduler
	intakeWorker *intake.Worker
	healthServer *health.Server
	rpcClients   []*rpc.Client
	redisClient  *redisclient.Client
	db           *postgres.DB
	log          *slog.Logger
}

// NewSentinel creates a new Sentinel instance with all dependencies
// initialized. Corrupt backing documents and an empty chain set abort here:
// both are startup preconditions.
func NewSentinel(cfg Config) (*Sentinel, error) {
	ctx := context.Background()

	// 1. Load the backing documents. Corruption is fatal: no partial queue
	// or ledger is ever used.
	q := queue.New(file.NewQueueRepo(cfg.QueueFile))
	if err := q.Load(ctx); err != nil {
		return nil, err
	}
	l := ledger.New(file.NewLedgerRepo(cfg.StateFile))
	if err := l.Load(ctx); err != nil {
		return nil, err
	}

	// 2. Build one oracle per configured chain.
	oracles := make(map[string]chain.Oracle)
	chainNames := make([]string, 0, len(cfg.Chains))
	var rpcClients []*rpc.Client

	for _, chainCfg := range cfg.Chains {
		if len(chainCfg.Providers) == 0 {
			slog.Warn("Chain has no providers, skipping", "chain", chainCfg.Name)
			continue
		}

		providers := make([]rpc.Provider, 0, len(chainCfg.Providers))
		for _, p := range chainCfg.Providers {
			providers = append(providers, rpc.NewHTTPProvider(p.Name, p.URL, chainCfg.RPCTimeout))
		}

		client := rpc.NewClient(chainCfg.Name, providers)
		rpcClients = append(rpcClients, client)
		oracles[chainCfg.Name] = evm.NewOracle(chainCfg.Name, client)
		chainNames = append(chainNames, chainCfg.Name)
	}

	// 3. Scheduler. Zero usable chains aborts startup.
	sched, err := scheduler.New(scheduler.Config{
		Oracles:      oracles,
		MaxFeeGwei:   cfg.MaxFeeGwei,
		PollInterval: cfg.PollInterval,
		Jitter:       cfg.Jitter,
		SaveEvery:    cfg.SaveEveryAttempts,
	}, q, l)
	if err != nil {
		return nil, err
	}

	// 4. Optional broadcast-history archive.
	var db *postgres.DB
	if cfg.Database.URL != "" {
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		history := postgres.NewHistoryRepo(db)
		sched.SetBroadcastCallback(func(ctx context.Context, item domain.QueueItem, fp string, rec domain.BroadcastRecord) {
			if err := history.Insert(ctx, item, fp, rec); err != nil {
				slog.Warn("Failed to archive broadcast",
					"chain", item.Chain, "label", item.Label, "error", err)
			}
		})
		slog.Info("Broadcast history archive enabled")
	}

	// 5. Optional redis intake queue.
	var redisClient *redisclient.Client
	var intakeWorker *intake.Worker
	if cfg.Redis.URL != "" && cfg.IntakeEnabled {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, intake disabled", "error", err)
		} else {
			intakeWorker = intake.NewWorker(intake.DefaultConfig(), redisClient, q, l, chainNames)
			slog.Info("Intake worker initialized")
		}
	}

	// 6. Health monitor and server.
	monitor := health.NewMonitor(chainNames, sched, q, l, 3*cfg.PollInterval)
	healthServer := health.NewServer(monitor, cfg.Port)

	return &Sentinel{
		cfg:          cfg,
		queue:        q,
		ledger:       l,
		sched:        sched,
		intakeWorker: intakeWorker,
		healthServer: healthServer,
		rpcClients:   rpcClients,
		redisClient:  redisClient,
		db:           db,
		log:          slog.Default(),
	}, nil
}

// Start starts the sentinel and all its components.
func (s *Sentinel) Start(ctx context.Context) error {
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	if s.intakeWorker != nil {
		go func() {
			if err := s.intakeWorker.Run(ctx); err != nil {
				s.log.Error("Intake worker failed", "error", err)
			}
		}()
	}

	go func() {
		if err := s.sched.Start(ctx); err != nil {
			s.log.Error("Scheduler failed", "error", err)
		}
	}()

	return nil
}

// Stop stops the sentinel.
func (s *Sentinel) Stop(ctx context.Context) error {
	s.log.Info("Stopping Sentinel...")

	_ = s.sched.Stop()

	for _, c := range s.rpcClients {
		_ = c.Close()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}

	return s.healthServer.Stop(ctx)
}
