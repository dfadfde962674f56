package stackshop

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type pgSessionsStore struct {
	db *sql.DB
}

func newPGSessionsStore(db *sql.DB) *pgSessionsStore {
	return &pgSessionsStore{db: db}
}

const sessionColumns = `id, user_id, instance_id, token, console_type, expires_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (*SessionRecord, error) {
	var s SessionRecord
	err := row.Scan(&s.ID, &s.UserID, &s.InstanceID, &s.Token, &s.ConsoleType, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *pgSessionsStore) Insert(ctx context.Context, rec *SessionRecord) error {
	if s.db == nil {
		return errDBUnavailable
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ss_console_sessions (id, user_id, instance_id, token, console_type, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID, rec.InstanceID, rec.Token, rec.ConsoleType, rec.ExpiresAt,
	)
	return err
}

func (s *pgSessionsStore) GetByToken(ctx context.Context, token string) (*SessionRecord, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rec, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM ss_console_sessions WHERE token=$1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	return rec, err
}

func (s *pgSessionsStore) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ss_console_sessions SET expires_at=$2 WHERE id=$1`, id, expiresAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

func (s *pgSessionsStore) DeleteByToken(ctx context.Context, token string) (bool, error) {
	if s.db == nil {
		return false, errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM ss_console_sessions WHERE token=$1`, token)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *pgSessionsStore) DeleteByID(ctx context.Context, id string) error {
	if s.db == nil {
		return errDBUnavailable
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM ss_console_sessions WHERE id=$1`, id)
	return err
}

func (s *pgSessionsStore) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	if s.db == nil {
		return 0, errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM ss_console_sessions WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *pgSessionsStore) DeleteForInstance(ctx context.Context, instanceID string) (int64, error) {
	if s.db == nil {
		return 0, errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM ss_console_sessions WHERE instance_id=$1`, instanceID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *pgSessionsStore) DeleteForWorkshop(ctx context.Context, workshopID int) (int64, error) {
	if s.db == nil {
		return 0, errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ss_console_sessions
		WHERE instance_id IN (SELECT id FROM ss_instances WHERE workshop_id=$1)`, workshopID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *pgSessionsStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if s.db == nil {
		return 0, errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM ss_console_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
