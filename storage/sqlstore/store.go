package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	_ "github.com/lib/pq"              // postgres driver
	_ "github.com/mattn/go-sqlite3"    // sqlite3 driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/extra/bunotel"

	"github.com/giantswarm/oauth-server/storage"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

const (
	// DefaultAuthorizationCodeTTL is how long an unredeemed code row is kept
	DefaultAuthorizationCodeTTL = 600 * time.Second

	// DefaultCleanupInterval is how often expired rows are purged
	DefaultCleanupInterval = time.Minute

	pingTimeout = 5 * time.Second
)

// Config holds configuration for the SQL storage backend.
type Config struct {
	// Driver is one of "sqlite", "postgres" or "mysql" (required)
	Driver string

	// DSN is the driver specific data source name (required)
	DSN string

	// CleanupInterval controls how often expired codes and tokens are deleted.
	// Default: 1 minute
	CleanupInterval time.Duration

	// Debug logs every query to stderr
	Debug bool

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a SQL implementation of storage.Storage.
type Store struct {
	db     *bun.DB
	logger *slog.Logger

	mu      sync.RWMutex
	codeTTL int64 // seconds
	now     func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// Compile-time interface checks
var (
	_ storage.Storage       = (*Store)(nil)
	_ storage.ClientStore   = (*Store)(nil)
	_ storage.ApprovalStore = (*Store)(nil)
	_ storage.CodeStore     = (*Store)(nil)
	_ storage.TokenStore    = (*Store)(nil)
)

// Open connects to the database described by cfg, creates missing tables and
// starts the cleanup loop.
func Open(cfg Config) (*Store, error) {
	var (
		driverName string
		dialect    func(*sql.DB) *bun.DB
	)
	switch cfg.Driver {
	case DriverSQLite:
		driverName = "sqlite3"
		dialect = func(db *sql.DB) *bun.DB { return bun.NewDB(db, sqlitedialect.New()) }
	case DriverPostgres:
		driverName = "postgres"
		dialect = func(db *sql.DB) *bun.DB { return bun.NewDB(db, pgdialect.New()) }
	case DriverMySQL:
		driverName = "mysql"
		dialect = func(db *sql.DB) *bun.DB { return bun.NewDB(db, mysqldialect.New()) }
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sql dsn is required")
	}

	sqlDB, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// SQLite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	db := dialect(sqlDB)
	db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(cfg.Driver)))
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	s, err := New(db, cfg.Logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go s.cleanupLoop(interval)

	s.logger.Info("Connected to SQL storage", "driver", cfg.Driver)
	return s, nil
}

// New wraps an existing bun database and creates missing tables. It does not
// start the cleanup loop; call PurgeExpired yourself or use Open.
func New(db *bun.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:          db,
		logger:      logger,
		codeTTL:     int64(DefaultAuthorizationCodeTTL / time.Second),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if err := s.createSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	return nil
}

// DB returns the underlying bun database
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close stops the cleanup loop and closes the database.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return s.db.Close()
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetClock replaces the time source used by PurgeExpired
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetAuthorizationCodeTTL sets how long code rows are kept before they are purged.
func (s *Store) SetAuthorizationCodeTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeTTL = int64(ttl / time.Second)
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			if _, err := s.PurgeExpired(context.Background()); err != nil {
				s.logger.Warn("Failed to purge expired rows", "error", err)
			}
		}
	}
}

// PurgeExpired deletes expired authorization codes and access tokens and
// returns the number of rows removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.RLock()
	now := s.now().Unix()
	codeTTL := s.codeTTL
	s.mu.RUnlock()

	res, err := s.db.NewDelete().
		Model((*codeRecord)(nil)).
		Where("issue_time < ?", now-codeTTL).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to purge authorization codes: %w", err)
	}
	codes, _ := res.RowsAffected()

	res, err = s.db.NewDelete().
		Model((*accessTokenRecord)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return codes, fmt.Errorf("failed to purge access tokens: %w", err)
	}
	tokens, _ := res.RowsAffected()

	if codes+tokens > 0 {
		s.logger.Debug("Cleaned up expired entries", "codes", codes, "access_tokens", tokens)
	}
	return codes + tokens, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
