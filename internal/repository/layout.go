package repository

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

// sqlRepository implements LayoutRepository on any sqlx driver; queries are
// written with ? and rebound per driver.
type sqlRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// Close closes the database connection
func (r *sqlRepository) Close() error {
	return r.db.Close()
}

// RunMigrations runs database migrations
func (r *sqlRepository) RunMigrations(migrationSQL string) error {
	_, err := r.db.Exec(migrationSQL)
	return err
}

// RunMigrationFile reads a migration from fsys and runs it.
func (r *sqlRepository) RunMigrationFile(fsys fs.FS, name string) error {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}
	if err := r.RunMigrations(string(b)); err != nil {
		return fmt.Errorf("run migration %s: %w", name, err)
	}
	return nil
}

type pinRow struct {
	models.Pin
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *sqlRepository) GetLayout(ctx context.Context, view string) (*models.Layout, error) {
	var rows []pinRow
	query := r.db.Rebind(`SELECT layer, item_id, x, y, updated_at FROM layout_pins WHERE view = ? ORDER BY layer, item_id`)
	if err := r.db.SelectContext(ctx, &rows, query, view); err != nil {
		return nil, fmt.Errorf("get layout %s: %w", view, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("layout %s: %w", view, ErrNotFound)
	}
	layout := &models.Layout{View: view, Pins: make([]models.Pin, 0, len(rows))}
	for _, row := range rows {
		layout.Pins = append(layout.Pins, row.Pin)
		if row.UpdatedAt.After(layout.UpdatedAt) {
			layout.UpdatedAt = row.UpdatedAt
		}
	}
	return layout, nil
}

func (r *sqlRepository) SaveLayout(ctx context.Context, layout *models.Layout) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM layout_pins WHERE view = ?`), layout.View); err != nil {
		return fmt.Errorf("clear layout %s: %w", layout.View, err)
	}
	layout.UpdatedAt = r.now().UTC()
	if err := upsert(ctx, tx, layout.View, layout.Pins, layout.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sqlRepository) UpsertPins(ctx context.Context, view string, pins []models.Pin) error {
	if len(pins) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := upsert(ctx, tx, view, pins, r.now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func upsert(ctx context.Context, tx *sqlx.Tx, view string, pins []models.Pin, at time.Time) error {
	query := tx.Rebind(`
		INSERT INTO layout_pins (view, layer, item_id, x, y, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (view, layer, item_id) DO UPDATE SET x = excluded.x, y = excluded.y, updated_at = excluded.updated_at
	`)
	for _, p := range pins {
		if _, err := tx.ExecContext(ctx, query, view, p.Layer, p.ID, p.X, p.Y, at); err != nil {
			return fmt.Errorf("save pin %s/%s/%s: %w", view, p.Layer, p.ID, err)
		}
	}
	return nil
}

func (r *sqlRepository) DeletePin(ctx context.Context, view, layer, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM layout_pins WHERE view = ? AND layer = ? AND item_id = ?`), view, layer, id)
	if err != nil {
		return fmt.Errorf("delete pin %s/%s/%s: %w", view, layer, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pin %s/%s/%s: %w", view, layer, id, ErrNotFound)
	}
	return nil
}

func (r *sqlRepository) DeleteLayout(ctx context.Context, view string) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM layout_pins WHERE view = ?`), view); err != nil {
		return fmt.Errorf("delete layout %s: %w", view, err)
	}
	return nil
}
