// Package storage is the relational store shared by the modules. Modules get
// a transaction scoped *gorm.DB and never see the pool itself.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrOffline is returned by Transaction while the pool is unavailable.
var ErrOffline = errors.New("sql database is offline")

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Config struct {
	Driver   string
	DSN      string
	Database string
	MaxConns int
	Logger   zerolog.Logger
}

// SQL wraps a gorm pool. It starts offline; Init brings it online.
type SQL struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	db       *gorm.DB
	online   bool
	inflight sync.WaitGroup
}

func New(cfg Config) *SQL {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.Database == "" {
		cfg.Database = "lia_bot"
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	return &SQL{cfg: cfg, log: cfg.Logger}
}

// Init makes sure the database exists, opens the pool and checks it accepts
// connections. Calling Init on an online store is a no-op.
func (s *SQL) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online {
		return nil
	}

	var dialector gorm.Dialector
	switch s.cfg.Driver {
	case DriverMySQL:
		dsn, err := s.ensureMySQLDatabase(ctx)
		if err != nil {
			return err
		}
		dialector = mysql.Open(dsn)
	case DriverSQLite:
		path := s.cfg.DSN
		if path == "" {
			path = filepath.Clean(s.cfg.Database + ".db")
		}
		dialector = sqlite.Open(path)
	default:
		return fmt.Errorf("unknown sql driver %q", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return fmt.Errorf("open %s pool: %w", s.cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(s.cfg.MaxConns)
	if s.cfg.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("ping %s pool: %w", s.cfg.Driver, err)
	}

	s.db = db
	s.online = true
	s.log.Info().Str("driver", s.cfg.Driver).Str("database", s.cfg.Database).Msg("SQL database online")
	return nil
}

// ensureMySQLDatabase creates the configured database through a connection
// to the server and returns the DSN pointing at it.
func (s *SQL) ensureMySQLDatabase(ctx context.Context) (string, error) {
	dsnCfg, err := mysqldrv.ParseDSN(s.cfg.DSN)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	dsnCfg.DBName = ""
	dsnCfg.ParseTime = true

	boot, err := gorm.Open(mysql.Open(dsnCfg.FormatDSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return "", fmt.Errorf("connect mysql server: %w", err)
	}
	bootDB, err := boot.DB()
	if err != nil {
		return "", err
	}
	defer bootDB.Close()

	if err := boot.WithContext(ctx).Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", s.cfg.Database)).Error; err != nil {
		return "", fmt.Errorf("create database %s: %w", s.cfg.Database, err)
	}

	dsnCfg.DBName = s.cfg.Database
	return dsnCfg.FormatDSN(), nil
}

// Online reports whether transactions are accepted.
func (s *SQL) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *SQL) acquire() (*gorm.DB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.online {
		return nil, false
	}
	s.inflight.Add(1)
	return s.db, true
}

// Transaction runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back when it returns an error or panics. There is no
// retry: an offline store fails immediately with ErrOffline.
func (s *SQL) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, ok := s.acquire()
	if !ok {
		return ErrOffline
	}
	defer s.inflight.Done()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("transaction panicked: %v", r)
			}
		}()
		return fn(tx)
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Transaction rolled back")
		return err
	}
	return nil
}

// Close stops accepting transactions and waits for the running ones until
// ctx is done, then closes the pool regardless.
func (s *SQL) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.online {
		s.mu.Unlock()
		return nil
	}
	s.online = false
	db := s.db
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("Shutdown grace elapsed with transactions still running")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DrainTimeout is how long shutdown waits for storage by default.
const DrainTimeout = 20 * time.Second
