package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Link is a named reference to an external store file.
type Link struct {
	Name   string
	Target string
}

// Link registers target under name, replacing any previous link of that name.
// The target is stored as given; nothing is copied.
func (s *Store) Link(name, target string) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("store: invalid link name %q", name)
	}
	q, release, err := s.writer()
	if err != nil {
		return err
	}
	defer release()
	if _, err := q.Exec(`INSERT INTO links (name, target) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET target = excluded.target`, name, target); err != nil {
		return fmt.Errorf("store: link %q: %w", name, err)
	}
	return nil
}

// Links lists every link in name order.
func (s *Store) Links() ([]Link, error) {
	q, release, err := s.reader()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := q.Query(`SELECT name, target FROM links ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list links: %w", err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.Name, &l.Target); err != nil {
			return nil, fmt.Errorf("store: list links: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Resolve dereferences the link name by opening its target read-only with
// this store's options. The caller owns the returned store.
func (s *Store) Resolve(name string) (*Store, error) {
	q, release, err := s.reader()
	if err != nil {
		return nil, err
	}
	var target string
	err = q.QueryRow(`SELECT target FROM links WHERE name = ?`, name).Scan(&target)
	release()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Path: name, Segment: name}
	}
	if err != nil {
		return nil, fmt.Errorf("store: resolve %q: %w", name, err)
	}
	linked, err := Open(target, ReadOnly, WithCodec(s.opts.codec), WithLogger(s.opts.log))
	if err != nil {
		return nil, fmt.Errorf("store: resolve %q: %w", name, err)
	}
	return linked, nil
}

// LinkCorpus writes a new master store at masterPath that links every clip
// store found in the immediate subdirectories of baseDir, keyed by the store
// file's stem. Subdirectories without a store are skipped. It returns the
// number of links written.
func LinkCorpus(baseDir, masterPath string, opts ...Option) (int, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return 0, fmt.Errorf("store: link corpus %q: %w", baseDir, err)
	}
	absMaster, err := filepath.Abs(masterPath)
	if err != nil {
		return 0, fmt.Errorf("store: link corpus: %w", err)
	}

	n := 0
	err = With(masterPath, Create, func(master *Store) error {
		seen := make(map[string]string)
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(baseDir, e.Name())
			files, err := os.ReadDir(dir)
			if err != nil {
				master.log.WithError(err).WithField("dir", dir).Warn("skipping unreadable directory")
				continue
			}
			for _, f := range files {
				if f.IsDir() || filepath.Ext(f.Name()) != Ext {
					continue
				}
				abs, err := filepath.Abs(filepath.Join(dir, f.Name()))
				if err != nil {
					return err
				}
				if abs == absMaster {
					continue
				}
				name := strings.TrimSuffix(f.Name(), Ext)
				if prev, ok := seen[name]; ok {
					master.log.WithFields(logrus.Fields{"clip": name, "previous": prev, "target": abs}).
						Warn("duplicate clip name, later store wins")
				} else {
					n++
				}
				seen[name] = abs
				if err := master.Link(name, abs); err != nil {
					return err
				}
			}
		}
		return nil
	}, opts...)
	if err != nil {
		return 0, err
	}
	return n, nil
}
