package stackshop

import (
	"context"
	"errors"
	"time"
)

// Store-level sentinel; the API layer translates it to errs.NotFound.
var errNotFound = errors.New("record not found")

var errDBUnavailable = errors.New("database unavailable")

type providersStore interface {
	List(ctx context.Context, enabledOnly bool) ([]ProviderRecord, error)
	Get(ctx context.Context, id int) (*ProviderRecord, error)
	Upsert(ctx context.Context, p *ProviderRecord) (int, error)
}

type workshopsStore interface {
	Get(ctx context.Context, id int) (*WorkshopRecord, error)
	ListByProvider(ctx context.Context, providerID int, enabledOnly bool) ([]WorkshopRecord, error)
	ListEnabled(ctx context.Context) ([]WorkshopRecord, error)
	Upsert(ctx context.Context, w *WorkshopRecord) (int, error)
}

type instancesStore interface {
	Get(ctx context.Context, id string) (*InstanceRecord, error)
	GetByOpenStackID(ctx context.Context, openstackID string) (*InstanceRecord, error)
	ListByWorkshop(ctx context.Context, workshopID int) ([]InstanceRecord, error)
	Insert(ctx context.Context, inst *InstanceRecord) error
	// UpdateStatus overwrites status and power state only (ingest refresh).
	UpdateStatus(ctx context.Context, id, status, powerState string) error
	// UpdateSyncState overwrites status, power state, and replaces the IP list.
	UpdateSyncState(ctx context.Context, id, status, powerState string, ips []string) error
	UpdateAssignedUser(ctx context.Context, id, user string) error
	SetLockedForWorkshop(ctx context.Context, workshopID int, locked bool) error
}

type sessionsStore interface {
	Insert(ctx context.Context, s *SessionRecord) error
	GetByToken(ctx context.Context, token string) (*SessionRecord, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteForUser(ctx context.Context, userID string) (int64, error)
	DeleteForInstance(ctx context.Context, instanceID string) (int64, error)
	// DeleteForWorkshop removes every session whose instance belongs to the
	// workshop (join through ss_instances).
	DeleteForWorkshop(ctx context.Context, workshopID int) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
