package datastore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// BackupLayout names backup directories, e.g. 2024-03-01--04-00-00.
const BackupLayout = "2006-01-02--15-04-05"

var nowFunc = time.Now

// Backup copies every database to <BackupRoot>/<stamp>/<guild> and returns
// the stamp directory. Each database is locked for the duration of its copy.
// A failing database does not stop the others.
func (s *Store) Backup(now time.Time) (string, error) {
	if err := s.enter(); err != nil {
		return "", err
	}
	defer s.wg.Done()

	target := filepath.Join(s.cfg.BackupRoot, now.Format(BackupLayout))

	var result error
	for _, id := range s.Databases() {
		db, err := s.database(id)
		if err != nil {
			continue
		}
		if err := db.backup(filepath.Join(target, id)); err != nil {
			result = multierror.Append(result, fmt.Errorf("backup %s: %w", id, err))
		}
	}
	return target, result
}

func (db *database) backup(dst string) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		if err := copyFile(filepath.Join(db.dir, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
