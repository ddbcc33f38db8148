// Package datastore is a per-guild document store. Every guild owns a
// directory of JSON collections; modules reach them through sessions that are
// serialised per guild and group.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	ErrClosed     = errors.New("datastore is closed")
	ErrNoDatabase = errors.New("database does not exist")
	ErrBadSession = errors.New("session is no longer valid")
)

// GlobalDatabase holds data that does not belong to a guild.
const GlobalDatabase = "0"

// Config holds configuration options for the Store
type Config struct {
	Root       string
	BackupRoot string
	Logger     zerolog.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Root:       "db",
		BackupRoot: "db_bak",
		Logger:     zerolog.Nop(),
	}
}

type Store struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	dbs    map[string]*database
	keys   map[string]chan struct{}
	closed bool
	wg     sync.WaitGroup
	cron   *cron.Cron
}

// database is one guild directory. Sessions hold the read lock, backups the
// write lock, so a backup never sees a half written collection.
type database struct {
	id   string
	dir  string
	lock sync.RWMutex

	mu          sync.Mutex
	collections map[string]*collection
}

// New opens the store at cfg.Root, picking up every guild database already on
// disk and creating the global one.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	s := &Store{
		cfg:  cfg,
		log:  cfg.Logger,
		dbs:  make(map[string]*database),
		keys: make(map[string]chan struct{}),
	}

	entries, err := os.ReadDir(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			s.dbs[e.Name()] = newDatabase(e.Name(), filepath.Join(cfg.Root, e.Name()))
		}
	}

	if err := s.CreateDatabase(GlobalDatabase); err != nil {
		return nil, err
	}
	return s, nil
}

func newDatabase(id, dir string) *database {
	return &database{id: id, dir: dir, collections: make(map[string]*collection)}
}

// CreateDatabase makes sure a database for guildID exists. It is idempotent.
func (s *Store) CreateDatabase(guildID string) error {
	if !validName(guildID) {
		return fmt.Errorf("invalid database name %q", guildID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.dbs[guildID]; ok {
		return nil
	}

	dir := filepath.Join(s.cfg.Root, guildID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create database %s: %w", guildID, err)
	}
	s.dbs[guildID] = newDatabase(guildID, dir)
	return nil
}

// Databases returns the ids of all known databases, sorted.
func (s *Store) Databases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.dbs))
	for id := range s.dbs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// enter registers a running operation so Close can wait for it.
func (s *Store) enter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.wg.Add(1)
	return nil
}

func (s *Store) database(guildID string) (*database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[guildID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDatabase, guildID)
	}
	return db, nil
}

func (s *Store) keyLock(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.keys[key]
	if !ok {
		l = make(chan struct{}, 1)
		s.keys[key] = l
	}
	return l
}

// Session runs fn with exclusive access to the collections of group in the
// guild database. Sessions on the same guild and group run one after
// another; waiting gives up when ctx is done. The session is invalid once fn
// returns.
func (s *Store) Session(ctx context.Context, guildID, group string, fn func(*Session) error) error {
	if !validName(group) {
		return fmt.Errorf("invalid group name %q", group)
	}
	if err := s.enter(); err != nil {
		return err
	}
	defer s.wg.Done()

	db, err := s.database(guildID)
	if err != nil {
		return err
	}

	lock := s.keyLock(guildID + "__" + group)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	db.lock.RLock()
	defer db.lock.RUnlock()

	sess := &Session{id: uuid.New(), db: db, group: group, valid: true}
	defer sess.invalidate()

	return runSession(sess, fn)
}

func runSession(sess *Session, fn func(*Session) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session %s panicked: %v", sess.id, r)
		}
	}()
	return fn(sess)
}

// Schedule runs Backup on the given cron spec until Close.
func (s *Store) Schedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.cron == nil {
		s.cron = cron.New()
	}
	_, err := s.cron.AddFunc(spec, func() {
		path, err := s.Backup(nowFunc())
		if err != nil {
			s.log.Error().Err(err).Msg("Scheduled backup failed")
			return
		}
		s.log.Info().Str("path", path).Msg("Backup done")
	})
	if err != nil {
		return fmt.Errorf("schedule backup %q: %w", spec, err)
	}
	s.cron.Start()
	return nil
}

// Close refuses new sessions and waits for running sessions and backups until
// ctx is done.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.cron
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("Shutdown grace elapsed with document sessions still running")
		return ctx.Err()
	}
}

func (db *database) collection(name string) (*collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.collections[name]; ok {
		return c, nil
	}
	c, err := loadCollection(filepath.Join(db.dir, name+".json"))
	if err != nil {
		return nil, err
	}
	db.collections[name] = c
	return c, nil
}

func (db *database) forget(name string) {
	db.mu.Lock()
	delete(db.collections, name)
	db.mu.Unlock()
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return false
		}
	}
	return true
}
