// Package schema applies the tenant database schema. Everything here
// is idempotent: a crash between database creation and registry commit
// is recovered by simply running Init again, never by rolling back the
// external database.
package schema

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tenant_schema.yaml
var tenantSchemaYAML []byte

// Execer is the statement-execution capability shared by tenant
// connections and test fakes.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Column struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable"`
	Default    string `yaml:"default"`
	PrimaryKey bool   `yaml:"primary_key"`
}

type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

type Trigger struct {
	Name   string `yaml:"name"`
	Timing string `yaml:"timing"`
	Event  string `yaml:"event"`
	Action string `yaml:"action"`
}

type Table struct {
	Name     string    `yaml:"name"`
	Columns  []Column  `yaml:"columns"`
	Indexes  []Index   `yaml:"indexes"`
	Triggers []Trigger `yaml:"triggers"`
}

// Catalog is the declarative tenant schema, embedded at build time.
type Catalog struct {
	Version     string  `yaml:"version"`
	Description string  `yaml:"description"`
	Tables      []Table `yaml:"tables"`
}

// Load parses the embedded catalog.
func Load() (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(tenantSchemaYAML, &c); err != nil {
		return Catalog{}, fmt.Errorf("schema catalog: %w", err)
	}
	if c.Version == "" || len(c.Tables) == 0 {
		return Catalog{}, fmt.Errorf("schema catalog: empty catalog")
	}
	return c, nil
}

// Statements renders the catalog into DDL. Every statement uses
// IF NOT EXISTS so re-running is always safe.
func (c Catalog) Statements() []string {
	var stmts []string
	for _, t := range c.Tables {
		stmts = append(stmts, t.createTable())
		for _, ix := range t.Indexes {
			stmts = append(stmts, ix.create(t.Name))
		}
		for _, tr := range t.Triggers {
			stmts = append(stmts, tr.create(t.Name))
		}
	}
	return stmts
}

func (t Table) createTable() string {
	var cols []string
	for _, col := range t.Columns {
		def := col.Name + " " + col.Type
		if col.PrimaryKey {
			def += " PRIMARY KEY"
		} else if !col.Nullable {
			def += " NOT NULL"
		}
		if col.Default != "" {
			def += " DEFAULT " + col.Default
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(cols, ", "))
}

func (ix Index) create(table string) string {
	unique := ""
	if ix.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, ix.Name, table, strings.Join(ix.Columns, ", "))
}

func (tr Trigger) create(table string) string {
	return fmt.Sprintf("CREATE TRIGGER IF NOT EXISTS %s %s %s ON %s FOR EACH ROW BEGIN %s; END",
		tr.Name, tr.Timing, tr.Event, table, tr.Action)
}

// Init applies the full tenant schema plus version tracking. Must
// complete before the tenant's record becomes visible in the registry.
func Init(ctx context.Context, db Execer) error {
	cat, err := Load()
	if err != nil {
		return err
	}
	return Apply(ctx, db, cat)
}

// Apply runs the version table, catalog DDL, and version stamp.
func Apply(ctx context.Context, db Execer, cat Catalog) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("schema version table: %w", err)
	}
	for _, stmt := range cat.Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema apply %q: %w", firstWords(stmt, 4), err)
		}
	}
	cur, err := Version(ctx, db)
	if err != nil {
		return err
	}
	if cur != cat.Version {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_version (version, description) VALUES (?, ?)`,
			cat.Version, cat.Description); err != nil {
			return fmt.Errorf("schema version stamp: %w", err)
		}
	}
	return nil
}

// Sync brings an already-initialized tenant database up to the current
// catalog. Databases stamped at the catalog version are left untouched;
// anything else gets the catalog re-applied, which is safe because the
// DDL is idempotent. Reports whether an upgrade ran.
func Sync(ctx context.Context, db Execer) (bool, error) {
	cat, err := Load()
	if err != nil {
		return false, err
	}
	cur, err := Version(ctx, db)
	if err != nil {
		return false, err
	}
	if cur == cat.Version {
		return false, nil
	}
	if err := Apply(ctx, db, cat); err != nil {
		return false, err
	}
	return true, nil
}

// Version returns the most recently stamped schema version, or "" when
// the database has never been stamped.
func Version(ctx context.Context, db Execer) (string, error) {
	row := db.QueryRowContext(ctx,
		`SELECT version FROM schema_version ORDER BY id DESC LIMIT 1`)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("schema version: %w", err)
	}
	return v, nil
}

func firstWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[:n]
	}
	return strings.Join(f, " ")
}
