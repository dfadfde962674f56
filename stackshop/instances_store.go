package stackshop

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type pgInstancesStore struct {
	db *sql.DB
}

func newPGInstancesStore(db *sql.DB) *pgInstancesStore {
	return &pgInstancesStore{db: db}
}

const instanceColumns = `id, openstack_id, workshop_id, assigned_user, status, power_state, ip_addresses, locked, created_at, updated_at`

func encodeIPs(ips []string) ([]byte, error) {
	if ips == nil {
		ips = []string{}
	}
	return json.Marshal(ips)
}

func scanInstance(row interface{ Scan(...any) error }) (*InstanceRecord, error) {
	var inst InstanceRecord
	var rawIPs []byte
	err := row.Scan(
		&inst.ID, &inst.OpenStackID, &inst.WorkshopID, &inst.AssignedUser,
		&inst.Status, &inst.PowerState, &rawIPs, &inst.Locked,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawIPs) > 0 {
		if err := json.Unmarshal(rawIPs, &inst.IPAddresses); err != nil {
			return nil, err
		}
	}
	return &inst, nil
}

func (s *pgInstancesStore) Get(ctx context.Context, id string) (*InstanceRecord, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	inst, err := scanInstance(s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM ss_instances WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	return inst, err
}

func (s *pgInstancesStore) GetByOpenStackID(ctx context.Context, openstackID string) (*InstanceRecord, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	inst, err := scanInstance(s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM ss_instances WHERE openstack_id=$1`, strings.TrimSpace(openstackID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	return inst, err
}

func (s *pgInstancesStore) ListByWorkshop(ctx context.Context, workshopID int) ([]InstanceRecord, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM ss_instances WHERE workshop_id=$1 ORDER BY created_at`, workshopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InstanceRecord
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func (s *pgInstancesStore) Insert(ctx context.Context, inst *InstanceRecord) error {
	if s.db == nil {
		return errDBUnavailable
	}
	if strings.TrimSpace(inst.ID) == "" {
		inst.ID = uuid.NewString()
	}
	rawIPs, err := encodeIPs(inst.IPAddresses)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ss_instances (id, openstack_id, workshop_id, assigned_user, status, power_state, ip_addresses, locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inst.ID, strings.TrimSpace(inst.OpenStackID), inst.WorkshopID, strings.TrimSpace(inst.AssignedUser),
		inst.Status, inst.PowerState, rawIPs, inst.Locked,
	)
	return err
}

func (s *pgInstancesStore) UpdateStatus(ctx context.Context, id, status, powerState string) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ss_instances SET status=$2, power_state=$3, updated_at=now() WHERE id=$1`,
		id, status, powerState)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

func (s *pgInstancesStore) UpdateSyncState(ctx context.Context, id, status, powerState string, ips []string) error {
	if s.db == nil {
		return errDBUnavailable
	}
	rawIPs, err := encodeIPs(ips)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ss_instances SET status=$2, power_state=$3, ip_addresses=$4, updated_at=now() WHERE id=$1`,
		id, status, powerState, rawIPs)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

func (s *pgInstancesStore) UpdateAssignedUser(ctx context.Context, id, user string) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ss_instances SET assigned_user=$2, updated_at=now() WHERE id=$1`,
		id, strings.TrimSpace(user))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

func (s *pgInstancesStore) SetLockedForWorkshop(ctx context.Context, workshopID int, locked bool) error {
	if s.db == nil {
		return errDBUnavailable
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE ss_instances SET locked=$2, updated_at=now() WHERE workshop_id=$1 AND locked <> $2`,
		workshopID, locked)
	return err
}
