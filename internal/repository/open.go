package repository

import (
	"fmt"

	"github.com/kubilitics/kubilitics-topoview/migrations"
)

// Open connects to the configured database and applies the schema.
func Open(dbType, path, url string) (LayoutRepository, error) {
	switch dbType {
	case "", "sqlite":
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrationFile(migrations.FS, migrations.SQLite); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil
	case "postgres":
		repo, err := NewPostgresRepository(url)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrationFile(migrations.FS, migrations.Postgres); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}
