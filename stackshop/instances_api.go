package stackshop

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"encore.dev/beta/errs"
)

type InstanceResponse struct {
	Instance *InstanceRecord `json:"instance"`
}

type InstanceListResponse struct {
	Instances []InstanceRecord `json:"instances"`
}

// GetInstance returns one local instance record.
//
//encore:api auth method=GET path=/api/instances/:id
func (s *Service) GetInstance(ctx context.Context, id string) (*InstanceResponse, error) {
	inst, err := s.instances.Get(ctx, id)
	if errors.Is(err, errNotFound) {
		return nil, errs.B().Code(errs.NotFound).Msg("instance not found").Err()
	}
	if err != nil {
		return nil, err
	}
	return &InstanceResponse{Instance: inst}, nil
}

// ListWorkshopInstances returns the local instance records of a workshop.
//
//encore:api auth method=GET path=/api/workshops/:id/instances
func (s *Service) ListWorkshopInstances(ctx context.Context, id string) (*InstanceListResponse, error) {
	workshopID, err := parseWorkshopID(id)
	if err != nil {
		return nil, err
	}
	instances, err := s.instances.ListByWorkshop(ctx, workshopID)
	if err != nil {
		return nil, err
	}
	return &InstanceListResponse{Instances: instances}, nil
}

type IngestRequest struct {
	// RemoteIDs optionally restricts ingestion to these remote server ids.
	RemoteIDs []string `json:"remoteIds,omitempty"`
	// AssignUser attaches a user to the ingested instances.
	AssignUser string `json:"assignUser,omitempty"`
}

type IngestResponse struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// IngestWorkshopInstances discovers remote servers in the workshop's project
// and creates or refreshes the matching local records. Rows that have
// disappeared remotely are left alone; deletion is an explicit operation.
//
//encore:api auth method=POST path=/api/workshops/:id/ingest
func (s *Service) IngestWorkshopInstances(ctx context.Context, id string, req *IngestRequest) (*IngestResponse, error) {
	caller, err := requireAuthUser()
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin {
		return nil, errs.B().Code(errs.PermissionDenied).Msg("admin required").Err()
	}
	workshopID, err := parseWorkshopID(id)
	if err != nil {
		return nil, err
	}
	workshop, err := s.workshops.Get(ctx, workshopID)
	if errors.Is(err, errNotFound) {
		return nil, errs.B().Code(errs.NotFound).Msg("workshop not found").Err()
	}
	if err != nil {
		return nil, err
	}
	providerRec, err := s.providers.Get(ctx, workshop.ProviderID)
	if err != nil {
		return nil, err
	}
	provider, err := s.decryptedProvider(providerRec)
	if err != nil {
		return nil, err
	}
	result, err := s.ingestWorkshop(ctx, provider, workshop, ingestOptions{
		RemoteIDs:  req.RemoteIDs,
		AssignUser: strings.TrimSpace(req.AssignUser),
	})
	if err != nil {
		return nil, err
	}
	return &IngestResponse{Created: result.Created, Updated: result.Updated}, nil
}

// SyncInstance refreshes one instance from the provider, replacing its status,
// power state, and IP list.
//
//encore:api auth method=POST path=/api/instances/:id/sync
func (s *Service) SyncInstance(ctx context.Context, id string) (*InstanceResponse, error) {
	inst, err := s.instances.Get(ctx, id)
	if errors.Is(err, errNotFound) {
		return nil, errs.B().Code(errs.NotFound).Msg("instance not found").Err()
	}
	if err != nil {
		return nil, err
	}
	if err := s.syncInstance(ctx, inst); err != nil {
		return nil, err
	}
	refreshed, err := s.instances.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &InstanceResponse{Instance: refreshed}, nil
}

// SyncAllInstances sweeps every enabled provider and workshop. Unit failures
// are contained and counted, never fatal.
//
//encore:api auth method=POST path=/api/instances/sync-all
func (s *Service) SyncAllInstances(ctx context.Context) (*SyncAllResponse, error) {
	caller, err := requireAuthUser()
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin {
		return nil, errs.B().Code(errs.PermissionDenied).Msg("admin required").Err()
	}
	return s.syncAllInstances(ctx)
}

type PowerActionRequest struct {
	// Action is one of start, stop, reboot, hard-reboot.
	Action string `json:"action"`
}

// InstancePowerAction drives the provider's power verbs and refreshes the
// local record afterwards.
//
//encore:api auth method=POST path=/api/instances/:id/power
func (s *Service) InstancePowerAction(ctx context.Context, id string, req *PowerActionRequest) (*InstanceResponse, error) {
	caller, err := requireAuthUser()
	if err != nil {
		return nil, err
	}
	inst, err := s.instances.Get(ctx, id)
	if errors.Is(err, errNotFound) {
		return nil, errs.B().Code(errs.NotFound).Msg("instance not found").Err()
	}
	if err != nil {
		return nil, err
	}
	if inst.Locked && !caller.IsAdmin {
		return nil, errs.B().Code(errs.PermissionDenied).Msg("instance is locked").Err()
	}
	workshop, err := s.workshops.Get(ctx, inst.WorkshopID)
	if err != nil {
		return nil, err
	}
	providerRec, err := s.providers.Get(ctx, workshop.ProviderID)
	if err != nil {
		return nil, err
	}
	provider, err := s.decryptedProvider(providerRec)
	if err != nil {
		return nil, err
	}
	scope := workshopScope(workshop)
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "start":
		err = s.cloud.StartServer(ctx, provider, scope, inst.OpenStackID)
	case "stop":
		err = s.cloud.StopServer(ctx, provider, scope, inst.OpenStackID)
	case "reboot":
		err = s.cloud.RebootServer(ctx, provider, scope, inst.OpenStackID, false)
	case "hard-reboot":
		err = s.cloud.RebootServer(ctx, provider, scope, inst.OpenStackID, true)
	default:
		return nil, errs.B().Code(errs.InvalidArgument).Msg("action must be start, stop, reboot, or hard-reboot").Err()
	}
	if err != nil {
		return nil, err
	}
	// Best-effort refresh; power transitions are async on the provider side.
	if err := s.syncInstance(ctx, inst); err != nil {
		return &InstanceResponse{Instance: inst}, nil
	}
	refreshed, err := s.instances.Get(ctx, id)
	if err != nil {
		return &InstanceResponse{Instance: inst}, nil
	}
	return &InstanceResponse{Instance: refreshed}, nil
}

func parseWorkshopID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, errs.B().Code(errs.InvalidArgument).Msg("invalid workshop id").Err()
	}
	return id, nil
}
