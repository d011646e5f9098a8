package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	kindGroup   = 0
	kindDataset = 1
)

// Entry is one child of a group.
type Entry struct {
	Name  string
	Group bool
}

// Join builds a node path from its segments.
func Join(segments ...string) string { return strings.Join(segments, "/") }

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("store: invalid path %q", path)
		}
	}
	return parts, nil
}

func parentAndName(path string) (string, string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// CreateGroup creates the group at path and any missing ancestors. Existing
// groups are left untouched.
func (s *Store) CreateGroup(path string) error {
	q, release, err := s.writer()
	if err != nil {
		return err
	}
	defer release()
	return s.createGroup(q, path)
}

func (s *Store) createGroup(q querier, path string) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	for i := range parts {
		p := Join(parts[:i+1]...)
		kind, ok, err := nodeKind(q, p)
		if err != nil {
			return err
		}
		if ok {
			if kind != kindGroup {
				return fmt.Errorf("store: create group %q: %q is a dataset", path, p)
			}
			continue
		}
		parent, name := parentAndName(p)
		if _, err := q.Exec(`INSERT INTO nodes (path, parent, name, kind) VALUES (?, ?, ?, ?)`,
			p, parent, name, kindGroup); err != nil {
			return fmt.Errorf("store: create group %q: %w", p, err)
		}
	}
	return nil
}

// WriteDataset stores d at path, creating parent groups. An existing dataset
// at path is replaced.
func (s *Store) WriteDataset(path string, d Dataset) error {
	q, release, err := s.writer()
	if err != nil {
		return err
	}
	defer release()

	parent, _ := parentAndName(path)
	if parent != "" {
		if err := s.createGroup(q, parent); err != nil {
			return err
		}
	}
	return s.putDataset(q, path, d)
}

func (s *Store) putDataset(q querier, path string, d Dataset) error {
	if _, err := splitPath(path); err != nil || path == "" {
		return fmt.Errorf("store: invalid dataset path %q", path)
	}
	kind, ok, err := nodeKind(q, path)
	if err != nil {
		return err
	}
	if ok && kind == kindGroup {
		return fmt.Errorf("store: write dataset %q: path is a group", path)
	}
	shape, blob, err := d.encode()
	if err != nil {
		return fmt.Errorf("store: write dataset %q: %w", path, err)
	}
	parent, name := parentAndName(path)
	_, err = q.Exec(`INSERT INTO nodes (path, parent, name, kind, dtype, shape, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET dtype = excluded.dtype, shape = excluded.shape, data = excluded.data`,
		path, parent, name, kindDataset, string(d.DType), shape, blob)
	if err != nil {
		return fmt.Errorf("store: write dataset %q: %w", path, err)
	}
	return nil
}

// Dataset reads the dataset at path.
func (s *Store) Dataset(path string) (Dataset, error) {
	q, release, err := s.reader()
	if err != nil {
		return Dataset{}, err
	}
	defer release()

	var (
		kind         int
		dtype, shape string
		blob         []byte
	)
	err = q.QueryRow(`SELECT kind, dtype, shape, data FROM nodes WHERE path = ?`, path).
		Scan(&kind, &dtype, &shape, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, notFound(q, path)
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("store: read %q: %w", path, err)
	}
	if kind != kindDataset {
		return Dataset{}, fmt.Errorf("store: read %q: path is a group", path)
	}
	d, err := decodeDataset(dtype, shape, blob)
	if err != nil {
		return Dataset{}, fmt.Errorf("store: read %q: %w", path, err)
	}
	return d, nil
}

// Children lists the entries of the group at path in lexical name order.
// The empty path is the root.
func (s *Store) Children(path string) ([]Entry, error) {
	q, release, err := s.reader()
	if err != nil {
		return nil, err
	}
	defer release()

	if path != "" {
		kind, ok, err := nodeKind(q, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, notFound(q, path)
		}
		if kind != kindGroup {
			return nil, fmt.Errorf("store: list %q: path is a dataset", path)
		}
	}

	rows, err := q.Query(`SELECT name, kind FROM nodes WHERE parent = ? ORDER BY name`, path)
	if err != nil {
		return nil, fmt.Errorf("store: list %q: %w", path, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			name string
			kind int
		)
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("store: list %q: %w", path, err)
		}
		out = append(out, Entry{Name: name, Group: kind == kindGroup})
	}
	return out, rows.Err()
}

// Groups lists the names of child groups of path in lexical order.
func (s *Store) Groups(path string) ([]string, error) {
	entries, err := s.Children(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Group {
			out = append(out, e.Name)
		}
	}
	return out, nil
}

// Exists reports whether a node exists at path.
func (s *Store) Exists(path string) (bool, error) {
	q, release, err := s.reader()
	if err != nil {
		return false, err
	}
	defer release()
	_, ok, err := nodeKind(q, path)
	return ok, err
}

// IsGroup reports whether path names an existing group.
func (s *Store) IsGroup(path string) (bool, error) {
	q, release, err := s.reader()
	if err != nil {
		return false, err
	}
	defer release()
	kind, ok, err := nodeKind(q, path)
	return ok && kind == kindGroup, err
}

func nodeKind(q querier, path string) (int, bool, error) {
	var kind int
	err := q.QueryRow(`SELECT kind FROM nodes WHERE path = ?`, path).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: lookup %q: %w", path, err)
	}
	return kind, true, nil
}

// notFound builds a NotFoundError naming the first missing segment of path.
func notFound(q querier, path string) error {
	parts, err := splitPath(path)
	if err != nil || len(parts) == 0 {
		return &NotFoundError{Path: path, Segment: path}
	}
	for i := range parts {
		_, ok, err := nodeKind(q, Join(parts[:i+1]...))
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Path: path, Segment: parts[i]}
		}
	}
	return &NotFoundError{Path: path, Segment: parts[len(parts)-1]}
}

// SortNumeric parses frame index keys and returns them in ascending numeric
// order, so "10" sorts after "2". Keys that are not integers are returned
// separately.
func SortNumeric(keys []string) (indices []int, invalid []string) {
	for _, k := range keys {
		n, err := strconv.Atoi(k)
		if err != nil {
			invalid = append(invalid, k)
			continue
		}
		indices = append(indices, n)
	}
	sort.Ints(indices)
	return indices, invalid
}
