package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Text string
}

func testSQL(t *testing.T) *SQL {
	t.Helper()
	s := New(Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	require.NoError(t, s.Transaction(context.Background(), func(tx *gorm.DB) error {
		return tx.AutoMigrate(&note{})
	}))
	return s
}

func count(t *testing.T, s *SQL) int64 {
	var n int64
	require.NoError(t, s.Transaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Model(&note{}).Count(&n).Error
	}))
	return n
}

func TestTransactionCommits(t *testing.T) {
	s := testSQL(t)

	err := s.Transaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&note{Text: "a"}).Error
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count(t, s))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := testSQL(t)
	boom := errors.New("boom")

	err := s.Transaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&note{Text: "a"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, count(t, s))
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	s := testSQL(t)

	err := s.Transaction(context.Background(), func(tx *gorm.DB) error {
		tx.Create(&note{Text: "a"})
		panic("bad query")
	})
	assert.Error(t, err)
	assert.EqualValues(t, 0, count(t, s))
}

func TestTransactionOffline(t *testing.T) {
	s := New(Config{Logger: zerolog.Nop()})

	called := false
	err := s.Transaction(context.Background(), func(*gorm.DB) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOffline)
	assert.False(t, called)
	assert.False(t, s.Online())
}

func TestCloseWaitsForInflight(t *testing.T) {
	s := testSQL(t)

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- s.Transaction(context.Background(), func(tx *gorm.DB) error {
			close(started)
			<-release
			return tx.Create(&note{Text: "late"}).Error
		})
	}()
	<-started

	closed := make(chan struct{})
	go func() {
		_ = s.Close(context.Background())
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a transaction was running")
	case <-time.After(50 * time.Millisecond):
	}

	err := s.Transaction(context.Background(), func(*gorm.DB) error { return nil })
	assert.ErrorIs(t, err, ErrOffline)

	close(release)
	require.NoError(t, <-finished)
	<-closed
}

func TestCloseGivesUpAfterGrace(t *testing.T) {
	s := testSQL(t)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Transaction(context.Background(), func(tx *gorm.DB) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_ = s.Close(ctx)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInitUnknownDriver(t *testing.T) {
	s := New(Config{Driver: "oracle", Logger: zerolog.Nop()})
	assert.Error(t, s.Init(context.Background()))
	assert.False(t, s.Online())
}
