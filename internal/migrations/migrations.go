// Package migrations reads numbered up/down SQL migration pairs from an fs.FS
// and applies them through a database-specific Driver.
package migrations

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/meikuraledutech/ctxsync"
)

// ErrNothingApplied is returned by Down when no migration has been applied.
var ErrNothingApplied = errors.New("no migrations applied")

// File is one migration with its up and down SQL.
type File struct {
	Name     string
	Up       string
	Down     string
	Checksum string
}

// Applied is a row of the tracking table.
type Applied struct {
	Name      string
	AppliedAt time.Time
	Checksum  string
}

// Driver runs migration SQL against one database.
type Driver interface {
	EnsureTable(ctx context.Context) error
	// Applied lists tracking rows in the order they were applied.
	Applied(ctx context.Context) ([]Applied, error)
	// Apply runs f.Up and records f in one transaction.
	Apply(ctx context.Context, f File) error
	// Revert runs f.Down and drops its record in one transaction.
	Revert(ctx context.Context, f File) error
}

// Load reads dir from fsys, pairs NAME.up.sql with NAME.down.sql and sorts by name.
func Load(fsys fs.FS, dir string) ([]File, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	upFiles := make(map[string]string)
	downFiles := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		if strings.HasSuffix(name, ".up.sql") {
			upFiles[strings.TrimSuffix(name, ".up.sql")] = string(data)
		} else if strings.HasSuffix(name, ".down.sql") {
			downFiles[strings.TrimSuffix(name, ".down.sql")] = string(data)
		}
	}

	var files []File
	for key, up := range upFiles {
		files = append(files, File{
			Name:     key,
			Up:       up,
			Down:     downFiles[key],
			Checksum: Checksum(up),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	return files, nil
}

// Checksum is the hex sha256 of a migration's up SQL.
func Checksum(up string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(up)))
}

// Find returns the migration called name.
func Find(files []File, name string) (File, bool) {
	for _, f := range files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// Up applies every pending migration in name order. An applied migration
// whose checksum no longer matches stops the run.
func Up(ctx context.Context, d Driver, files []File) error {
	applied, err := appliedByName(ctx, d)
	if err != nil {
		return err
	}

	for _, f := range files {
		if a, ok := applied[f.Name]; ok {
			if a.Checksum != f.Checksum {
				return fmt.Errorf("migration %s was modified after being applied", f.Name)
			}
			continue
		}
		if err := d.Apply(ctx, f); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Name, err)
		}
	}
	return nil
}

// Down reverts the most recently applied migration.
func Down(ctx context.Context, d Driver, files []File) error {
	if err := d.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}
	applied, err := d.Applied(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}
	if len(applied) == 0 {
		return ErrNothingApplied
	}

	last := applied[len(applied)-1]
	f, ok := Find(files, last.Name)
	if !ok || f.Down == "" {
		return fmt.Errorf("no down migration for %s", last.Name)
	}
	if err := d.Revert(ctx, f); err != nil {
		return fmt.Errorf("revert migration %s: %w", f.Name, err)
	}
	return nil
}

// Status lists every known migration with its applied state.
func Status(ctx context.Context, d Driver, files []File) ([]ctxsync.MigrationRecord, error) {
	applied, err := appliedByName(ctx, d)
	if err != nil {
		return nil, err
	}

	records := make([]ctxsync.MigrationRecord, 0, len(files))
	for _, f := range files {
		rec := ctxsync.MigrationRecord{Name: f.Name}
		if a, ok := applied[f.Name]; ok {
			at := a.AppliedAt
			rec.Applied = true
			rec.AppliedAt = &at
			rec.Checksum = a.Checksum
		}
		records = append(records, rec)
	}
	return records, nil
}

func appliedByName(ctx context.Context, d Driver) (map[string]Applied, error) {
	if err := d.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure migrations table: %w", err)
	}
	list, err := d.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("get applied migrations: %w", err)
	}
	m := make(map[string]Applied, len(list))
	for _, a := range list {
		m[a.Name] = a
	}
	return m, nil
}
