package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/taqastore/storefront/internal/config"
)

// MigrationOutcome classifies what the migration step did. Web startup
// proceeds on every outcome; the dispatcher only logs it.
type MigrationOutcome string

const (
	// MigrationApplied means migrations ran, including the case where
	// the schema was already current.
	MigrationApplied MigrationOutcome = "applied"
	// MigrationAbsent means there was nothing to run here: no database
	// configured, or no migration files shipped with the deployment.
	MigrationAbsent MigrationOutcome = "absent"
	// MigrationFailed means the tool ran and errored.
	MigrationFailed MigrationOutcome = "failed"
)

// MigrationResult reports one migration attempt.
type MigrationResult struct {
	Outcome MigrationOutcome
	// Version is the schema version after an applied run.
	Version uint
	Dirty   bool
	// Reason explains an absent outcome.
	Reason string
	// Err holds the failure for logging. Never escalated.
	Err error
}

// Migrate applies pending schema migrations from the configured
// directory. It never returns an error: the result is a report the
// caller logs, because a broken migration setup must not block the web
// role from serving.
func Migrate(cfg config.DatabaseConfig) MigrationResult {
	if !cfg.Configured() {
		return MigrationResult{Outcome: MigrationAbsent, Reason: "no database configured"}
	}

	dir := strings.TrimSpace(cfg.MigrationsDir)
	if dir == "" {
		return MigrationResult{Outcome: MigrationAbsent, Reason: "no migrations directory configured"}
	}
	ok, err := hasMigrationFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return MigrationResult{Outcome: MigrationAbsent, Reason: fmt.Sprintf("migrations directory %s does not exist", dir)}
		}
		return MigrationResult{Outcome: MigrationFailed, Err: fmt.Errorf("read migrations directory: %w", err)}
	}
	if !ok {
		return MigrationResult{Outcome: MigrationAbsent, Reason: fmt.Sprintf("no migration files in %s", dir)}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return MigrationResult{Outcome: MigrationFailed, Err: fmt.Errorf("resolve migrations directory: %w", err)}
	}

	m, err := migrate.New("file://"+abs, cfg.URL)
	if err != nil {
		return MigrationResult{Outcome: MigrationFailed, Err: fmt.Errorf("init migrate: %w", err)}
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, dirty, _ := m.Version()
		return MigrationResult{Outcome: MigrationFailed, Version: version, Dirty: dirty, Err: err}
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return MigrationResult{Outcome: MigrationFailed, Err: verr}
	}
	return MigrationResult{Outcome: MigrationApplied, Version: version, Dirty: dirty}
}

func hasMigrationFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".sql") {
			return true, nil
		}
	}
	return false, nil
}
