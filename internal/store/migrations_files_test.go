package store

import (
	"path"
	"strings"
	"testing"

	"moscowboard/api/internal/config"
)

func TestMigrationFilesHaveMatchingDown(t *testing.T) {
	for _, dialect := range []string{config.DriverPostgres, config.DriverSQLite} {
		ups, err := MigrationFiles(dialect, ".up.sql")
		if err != nil {
			t.Fatalf("MigrationFiles(%s, up) error = %v", dialect, err)
		}
		downs, err := MigrationFiles(dialect, ".down.sql")
		if err != nil {
			t.Fatalf("MigrationFiles(%s, down) error = %v", dialect, err)
		}
		if len(ups) == 0 {
			t.Fatalf("no migrations embedded for %s", dialect)
		}
		if len(ups) != len(downs) {
			t.Fatalf("%s: %d up files vs %d down files", dialect, len(ups), len(downs))
		}
		for i, up := range ups {
			want := strings.TrimSuffix(path.Base(up), ".up.sql") + ".down.sql"
			if path.Base(downs[i]) != want {
				t.Fatalf("%s: expected %s, got %s", dialect, want, path.Base(downs[i]))
			}
		}
	}
}

func TestDialectsShipTheSameVersions(t *testing.T) {
	pg, _ := MigrationFiles(config.DriverPostgres, ".up.sql")
	lite, _ := MigrationFiles(config.DriverSQLite, ".up.sql")
	if len(pg) != len(lite) {
		t.Fatalf("postgres has %d migrations, sqlite has %d", len(pg), len(lite))
	}
	for i := range pg {
		if path.Base(pg[i]) != path.Base(lite[i]) {
			t.Fatalf("version mismatch: %s vs %s", path.Base(pg[i]), path.Base(lite[i]))
		}
	}
}

func TestImmutabilityMigrationBlocksUpdateAndDelete(t *testing.T) {
	for _, dialect := range []string{config.DriverPostgres, config.DriverSQLite} {
		contents, err := migrationsFS.ReadFile(path.Join("migrations", dialect, "0002_change_log_immutable.up.sql"))
		if err != nil {
			t.Fatalf("read %s immutability migration: %v", dialect, err)
		}
		sql := string(contents)
		for _, needle := range []string{"trg_change_log_block_update", "trg_change_log_block_delete", "BEFORE UPDATE ON change_log", "BEFORE DELETE ON change_log"} {
			if !strings.Contains(sql, needle) {
				t.Fatalf("%s immutability migration missing %q", dialect, needle)
			}
		}
	}
}

func TestImmutabilityMigrationFailsHard(t *testing.T) {
	contents, err := migrationsFS.ReadFile(path.Join("migrations", config.DriverPostgres, "0002_change_log_immutable.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(contents)
	if !strings.Contains(sql, "RAISE EXCEPTION") || !strings.Contains(sql, "change_log_immutable_guard") {
		t.Fatalf("expected a raising guard function")
	}
	if strings.Contains(sql, "DO INSTEAD NOTHING") {
		t.Fatalf("expected hard-fail immutability guard, found silent DO INSTEAD NOTHING rule")
	}
}
