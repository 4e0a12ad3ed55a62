package pgx

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
)

// RunMigrations applies all pending schema migrations from sourceURL
// (e.g. "file://migrations") against the database.
func RunMigrations(sourceURL string, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[Store][Migrate] Schema already up to date")
			return nil
		}
		return err
	}
	logger.Info("[Store][Migrate] Schema migrations applied")
	return nil
}
