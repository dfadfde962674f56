package stackshop

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

type pgProvidersStore struct {
	db *sql.DB
}

func newPGProvidersStore(db *sql.DB) *pgProvidersStore {
	return &pgProvidersStore{db: db}
}

const providerColumns = `id, name, auth_url, identity_version, username, password, user_domain_name, region, enabled, created_at, updated_at`

func scanProvider(row interface{ Scan(...any) error }) (*ProviderRecord, error) {
	var p ProviderRecord
	err := row.Scan(
		&p.ID, &p.Name, &p.AuthURL, &p.IdentityVersion, &p.Username, &p.Password,
		&p.UserDomainName, &p.Region, &p.Enabled, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *pgProvidersStore) List(ctx context.Context, enabledOnly bool) ([]ProviderRecord, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	query := `SELECT ` + providerColumns + ` FROM ss_providers`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProviderRecord
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *pgProvidersStore) Get(ctx context.Context, id int) (*ProviderRecord, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	p, err := scanProvider(s.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM ss_providers WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	return p, err
}

// Upsert inserts or updates a provider by name. Used by seed loading; the
// password must already be secretbox-sealed.
func (s *pgProvidersStore) Upsert(ctx context.Context, p *ProviderRecord) (int, error) {
	if s.db == nil {
		return 0, errDBUnavailable
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return 0, errors.New("provider name is required")
	}
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ss_providers (name, auth_url, identity_version, username, password, user_domain_name, region, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			auth_url = EXCLUDED.auth_url,
			identity_version = EXCLUDED.identity_version,
			username = EXCLUDED.username,
			password = CASE WHEN EXCLUDED.password <> '' THEN EXCLUDED.password ELSE ss_providers.password END,
			user_domain_name = EXCLUDED.user_domain_name,
			region = EXCLUDED.region,
			enabled = EXCLUDED.enabled,
			updated_at = now()
		RETURNING id`,
		name, p.AuthURL, p.IdentityVersion, p.Username, p.Password, p.UserDomainName, p.Region, p.Enabled,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
