package stackshop

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

type pgWorkshopsStore struct {
	db *sql.DB
}

func newPGWorkshopsStore(db *sql.DB) *pgWorkshopsStore {
	return &pgWorkshopsStore{db: db}
}

const workshopColumns = `id, provider_id, name, project_id, project_name, lockout_start, lockout_end, enabled, created_at, updated_at`

func scanWorkshop(row interface{ Scan(...any) error }) (*WorkshopRecord, error) {
	var w WorkshopRecord
	var start, end sql.NullTime
	err := row.Scan(
		&w.ID, &w.ProviderID, &w.Name, &w.ProjectID, &w.ProjectName,
		&start, &end, &w.Enabled, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		t := start.Time
		w.LockoutStart = &t
	}
	if end.Valid {
		t := end.Time
		w.LockoutEnd = &t
	}
	return &w, nil
}

func (s *pgWorkshopsStore) Get(ctx context.Context, id int) (*WorkshopRecord, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	w, err := scanWorkshop(s.db.QueryRowContext(ctx,
		`SELECT `+workshopColumns+` FROM ss_workshops WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	return w, err
}

func (s *pgWorkshopsStore) queryWorkshops(ctx context.Context, query string, args ...any) ([]WorkshopRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkshopRecord
	for rows.Next() {
		w, err := scanWorkshop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (s *pgWorkshopsStore) ListByProvider(ctx context.Context, providerID int, enabledOnly bool) ([]WorkshopRecord, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	query := `SELECT ` + workshopColumns + ` FROM ss_workshops WHERE provider_id=$1`
	if enabledOnly {
		query += ` AND enabled`
	}
	query += ` ORDER BY id`
	return s.queryWorkshops(ctx, query, providerID)
}

func (s *pgWorkshopsStore) ListEnabled(ctx context.Context) ([]WorkshopRecord, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	return s.queryWorkshops(ctx,
		`SELECT `+workshopColumns+` FROM ss_workshops WHERE enabled ORDER BY id`)
}

func (s *pgWorkshopsStore) Upsert(ctx context.Context, w *WorkshopRecord) (int, error) {
	if s.db == nil {
		return 0, errDBUnavailable
	}
	name := strings.TrimSpace(w.Name)
	if name == "" {
		return 0, errors.New("workshop name is required")
	}
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ss_workshops (provider_id, name, project_id, project_name, lockout_start, lockout_end, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_id, name) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			project_name = EXCLUDED.project_name,
			lockout_start = EXCLUDED.lockout_start,
			lockout_end = EXCLUDED.lockout_end,
			enabled = EXCLUDED.enabled,
			updated_at = now()
		RETURNING id`,
		w.ProviderID, name, w.ProjectID, w.ProjectName, w.LockoutStart, w.LockoutEnd, w.Enabled,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
