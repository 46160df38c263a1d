package schema

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"

	"cronhub/internal/sqltest"
)

func TestLoad(t *testing.T) {
	cat, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cat.Version == "" {
		t.Error("catalog version empty")
	}
	var names []string
	for _, tbl := range cat.Tables {
		names = append(names, tbl.Name)
	}
	if len(names) == 0 || names[0] != "cron_jobs" {
		t.Errorf("tables = %v", names)
	}
}

func TestCatalog_StatementsAreRerunnable(t *testing.T) {
	cat, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	stmts := cat.Statements()
	if len(stmts) == 0 {
		t.Fatal("no statements rendered")
	}
	for _, s := range stmts {
		if !strings.Contains(s, "IF NOT EXISTS") {
			t.Errorf("statement not rerunnable: %s", s)
		}
	}
}

func TestCatalog_TableDDL(t *testing.T) {
	cat := Catalog{
		Version: "9.9.9",
		Tables: []Table{{
			Name: "things",
			Columns: []Column{
				{Name: "id", Type: "TEXT", PrimaryKey: true},
				{Name: "label", Type: "TEXT", Default: "''"},
				{Name: "note", Type: "TEXT", Nullable: true},
			},
			Indexes:  []Index{{Name: "idx_things_label", Columns: []string{"label"}, Unique: true}},
			Triggers: []Trigger{{Name: "trg", Timing: "AFTER", Event: "UPDATE", Action: "SELECT 1"}},
		}},
	}
	stmts := cat.Statements()
	if len(stmts) != 3 {
		t.Fatalf("statements = %d, want 3", len(stmts))
	}
	wantTable := "CREATE TABLE IF NOT EXISTS things (id TEXT PRIMARY KEY, label TEXT NOT NULL DEFAULT '', note TEXT)"
	if stmts[0] != wantTable {
		t.Errorf("table ddl:\n got %s\nwant %s", stmts[0], wantTable)
	}
	if !strings.HasPrefix(stmts[1], "CREATE UNIQUE INDEX IF NOT EXISTS idx_things_label") {
		t.Errorf("index ddl: %s", stmts[1])
	}
	if !strings.Contains(stmts[2], "AFTER UPDATE ON things FOR EACH ROW BEGIN SELECT 1; END") {
		t.Errorf("trigger ddl: %s", stmts[2])
	}
}

func TestInit_AppliesSchemaThenStampsVersion(t *testing.T) {
	fake := sqltest.New()
	db := fake.DB()
	defer db.Close()

	// Fresh database: version query finds nothing.
	if err := Init(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	calls := fake.Calls()
	if len(calls) == 0 {
		t.Fatal("no statements executed")
	}
	if !strings.Contains(calls[0].Query, "schema_version") {
		t.Errorf("first statement should create version table: %s", calls[0].Query)
	}
	last := calls[len(calls)-1]
	if !strings.Contains(last.Query, "INSERT INTO schema_version") {
		t.Errorf("last statement should stamp version: %s", last.Query)
	}
	var sawJobs bool
	for _, c := range calls {
		if strings.Contains(c.Query, "CREATE TABLE IF NOT EXISTS cron_jobs") {
			sawJobs = true
		}
	}
	if !sawJobs {
		t.Error("cron_jobs table never created")
	}
}

func TestSync_CurrentVersionIsNoop(t *testing.T) {
	fake := sqltest.New()
	db := fake.DB()
	defer db.Close()

	cat, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	fake.QueueRows([]string{"version"}, []driver.Value{cat.Version})

	upgraded, err := Sync(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if upgraded {
		t.Error("up-to-date database reported as upgraded")
	}
	for _, c := range fake.Calls() {
		if strings.Contains(c.Query, "CREATE TABLE") {
			t.Errorf("DDL executed on an up-to-date database: %s", c.Query)
		}
	}
}

func TestSync_OldVersionReapplies(t *testing.T) {
	fake := sqltest.New()
	db := fake.DB()
	defer db.Close()

	// Version is read once by the sync check and once by the stamp.
	fake.QueueRows([]string{"version"}, []driver.Value{"0.0.0"})
	fake.QueueRows([]string{"version"}, []driver.Value{"0.0.0"})

	upgraded, err := Sync(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if !upgraded {
		t.Fatal("outdated database not upgraded")
	}
	var sawJobs, sawStamp bool
	for _, c := range fake.Calls() {
		if strings.Contains(c.Query, "CREATE TABLE IF NOT EXISTS cron_jobs") {
			sawJobs = true
		}
		if strings.Contains(c.Query, "INSERT INTO schema_version") {
			sawStamp = true
		}
	}
	if !sawJobs {
		t.Error("catalog DDL not re-applied")
	}
	if !sawStamp {
		t.Error("new version not stamped")
	}
}

func TestInit_SecondRunSkipsVersionStamp(t *testing.T) {
	fake := sqltest.New()
	db := fake.DB()
	defer db.Close()

	cat, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	// Database already stamped at the current version.
	fake.QueueRows([]string{"version"}, []driver.Value{cat.Version})

	if err := Init(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	for _, c := range fake.Calls() {
		if strings.Contains(c.Query, "INSERT INTO schema_version") {
			t.Error("version re-stamped on idempotent re-run")
		}
	}
}
