// Package migrate applies the identity schema: versioned SQL
// migrations plus idempotent seed scripts for the built-in roles,
// permissions, and admin grants.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// historyTable records every script this binary has applied, with a
// checksum so an edited migration fails loudly instead of being
// silently skipped.
const historyTable = "identra_schema_history"

const (
	kindMigration = "migration"
	kindSeed      = "seed"
)

// Runner executes SQL migration and seed scripts stored on disk.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewRunner constructs a Runner over the given script directories.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies all pending migrations in name order.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	applied, err := r.applied(ctx, kindMigration)
	if err != nil {
		return err
	}
	scripts, err := listScripts(r.migrationsDir, ".up.sql")
	if err != nil {
		return err
	}
	for _, s := range scripts {
		body, err := os.ReadFile(s.Path)
		if err != nil {
			return err
		}
		sum := checksum(body)
		if prev, ok := applied[s.Name]; ok {
			if prev != sum {
				return fmt.Errorf("migration %s changed after being applied (checksum mismatch)", s.Name)
			}
			continue
		}
		if err := r.apply(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", s.Name, err)
		}
		if err := r.record(ctx, kindMigration, s.Name, sum); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	history, err := r.history(ctx, kindMigration)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	downPath := strings.TrimSuffix(filepath.Join(r.migrationsDir, last), ".up.sql") + ".down.sql"
	body, err := os.ReadFile(downPath)
	if err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.apply(ctx, string(body)); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1 and kind = $2`, historyTable), last, kindMigration)
	return err
}

// Status returns applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureHistory(ctx); err != nil {
		return nil, err
	}
	return r.history(ctx, kindMigration)
}

// Seed applies pending seed scripts. The scripts themselves are written
// with "on conflict do nothing", so already-applied names are simply
// skipped without a checksum comparison.
func (r *Runner) Seed(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	applied, err := r.applied(ctx, kindSeed)
	if err != nil {
		return err
	}
	scripts, err := listScripts(r.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if _, ok := applied[s.Name]; ok {
			continue
		}
		body, err := os.ReadFile(s.Path)
		if err != nil {
			return err
		}
		if err := r.apply(ctx, string(body)); err != nil {
			return fmt.Errorf("apply seed %s: %w", s.Name, err)
		}
		if err := r.record(ctx, kindSeed, s.Name, checksum(body)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) ensureHistory(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		create table if not exists %s (
			name text not null,
			kind text not null,
			checksum text not null,
			applied_at timestamptz not null default now(),
			primary key (name, kind)
		);`, historyTable)
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *Runner) apply(ctx context.Context, sqlText string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitSQL(sqlText) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, kind, name, sum string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, kind, checksum, applied_at) values ($1, $2, $3, $4)`, historyTable),
		name, kind, sum, time.Now().UTC())
	return err
}

func (r *Runner) applied(ctx context.Context, kind string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name, checksum from %s where kind = $1`, historyTable), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		result[name] = sum
	}
	return result, rows.Err()
}

func (r *Runner) history(ctx context.Context, kind string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1 order by applied_at asc`, historyTable), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type script struct {
	Name string
	Path string
}

// listScripts returns the matching files in dir. ReadDir already sorts
// entries by name, which is the application order.
func listScripts(dir, suffix string) ([]script, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var scripts []script
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		scripts = append(scripts, script{Name: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	return scripts, nil
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// splitSQL naively splits on semicolons outside single-quoted strings.
// Good enough for the DDL and seed scripts this repo carries.
func splitSQL(sqlText string) []string {
	var stmts []string
	var current strings.Builder
	inString := false
	for _, r := range sqlText {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
