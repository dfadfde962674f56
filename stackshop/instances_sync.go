package stackshop

import (
	"context"
	"errors"
	"strings"
	"sync"

	"encore.dev/rlog"

	"encore.app/internal/openstack"
)

// Reconciler: local instance rows mirror remote truth. Ingestion discovers
// servers, sync refreshes them. Nothing here deletes local rows; removing an
// instance is an explicit operation owned by the route layer.

type ingestOptions struct {
	// RemoteIDs restricts ingestion to an explicit set of remote server ids.
	RemoteIDs []string
	// AssignUser attaches a user to created instances (and re-assigns on update
	// when non-empty).
	AssignUser string
}

type ingestResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

func (s *Service) ingestWorkshop(ctx context.Context, provider openstack.Provider, workshop *WorkshopRecord, opts ingestOptions) (*ingestResult, error) {
	servers, err := s.cloud.ListServers(ctx, provider, workshopScope(workshop))
	if err != nil {
		return nil, err
	}
	var filter map[string]struct{}
	if len(opts.RemoteIDs) > 0 {
		filter = make(map[string]struct{}, len(opts.RemoteIDs))
		for _, id := range opts.RemoteIDs {
			if id = strings.TrimSpace(id); id != "" {
				filter[id] = struct{}{}
			}
		}
	}

	var result ingestResult
	for i := range servers {
		server := &servers[i]
		if filter != nil {
			if _, ok := filter[server.ID]; !ok {
				continue
			}
		}
		existing, err := s.instances.GetByOpenStackID(ctx, server.ID)
		switch {
		case errors.Is(err, errNotFound):
			inst := &InstanceRecord{
				OpenStackID:  server.ID,
				WorkshopID:   workshop.ID,
				AssignedUser: opts.AssignUser,
				Status:       server.Status,
				PowerState:   server.PowerState(),
				IPAddresses:  server.IPAddresses(),
			}
			if insErr := s.instances.Insert(ctx, inst); insErr != nil {
				// A concurrent ingest may have won the unique race; treat that
				// as an update, anything else as a real failure.
				if !isUniqueViolation(insErr, "ss_instances_openstack_id_key") {
					return &result, insErr
				}
				result.Updated++
				continue
			}
			result.Created++
		case err != nil:
			return &result, err
		default:
			if upErr := s.instances.UpdateStatus(ctx, existing.ID, server.Status, server.PowerState()); upErr != nil {
				return &result, upErr
			}
			if opts.AssignUser != "" && !strings.EqualFold(existing.AssignedUser, opts.AssignUser) {
				if upErr := s.instances.UpdateAssignedUser(ctx, existing.ID, opts.AssignUser); upErr != nil {
					return &result, upErr
				}
			}
			result.Updated++
		}
	}
	return &result, nil
}

// syncInstance refreshes one instance from remote truth, replacing (not
// merging) the IP list. Succeeds even when nothing changed.
func (s *Service) syncInstance(ctx context.Context, inst *InstanceRecord) error {
	workshop, err := s.workshops.Get(ctx, inst.WorkshopID)
	if err != nil {
		return err
	}
	providerRec, err := s.providers.Get(ctx, workshop.ProviderID)
	if err != nil {
		return err
	}
	provider, err := s.decryptedProvider(providerRec)
	if err != nil {
		return err
	}
	server, err := s.cloud.GetServer(ctx, provider, workshopScope(workshop), inst.OpenStackID)
	if err != nil {
		return err
	}
	return s.instances.UpdateSyncState(ctx, inst.ID, server.Status, server.PowerState(), server.IPAddresses())
}

type SyncAllResponse struct {
	Synced int `json:"synced"`
	Errors int `json:"errors"`
	Total  int `json:"total"`
}

type syncUnit struct {
	provider openstack.Provider
	workshop WorkshopRecord
}

// syncAllInstances sweeps every enabled provider's enabled workshops with a
// bounded worker pool. Any single unit failing is counted and logged, never
// fatal to the sweep.
func (s *Service) syncAllInstances(ctx context.Context) (*SyncAllResponse, error) {
	providerRecs, err := s.providers.List(ctx, true)
	if err != nil {
		return nil, err
	}

	var units []syncUnit
	failedUnits := 0
	for i := range providerRecs {
		rec := &providerRecs[i]
		provider, err := s.decryptedProvider(rec)
		if err != nil {
			rlog.Warn("skipping provider in sweep", "provider", rec.Name, "err", err)
			failedUnits++
			continue
		}
		workshops, err := s.workshops.ListByProvider(ctx, rec.ID, true)
		if err != nil {
			rlog.Warn("listing workshops failed in sweep", "provider", rec.Name, "err", err)
			failedUnits++
			continue
		}
		for _, w := range workshops {
			units = append(units, syncUnit{provider: provider, workshop: w})
		}
	}

	workers := s.cfg.SyncWorkers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(units) && len(units) > 0 {
		workers = len(units)
	}

	type unitResult struct {
		synced int
		errors int
	}
	jobs := make(chan int)
	results := make(chan unitResult)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				synced, errCount := s.syncWorkshopUnit(ctx, units[idx])
				results <- unitResult{synced: synced, errors: errCount}
			}
		}()
	}

	go func() {
		for idx := range units {
			select {
			case <-ctx.Done():
				close(jobs)
				wg.Wait()
				close(results)
				return
			case jobs <- idx:
			}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	resp := &SyncAllResponse{Errors: failedUnits}
	for res := range results {
		resp.Synced += res.synced
		resp.Errors += res.errors
	}
	resp.Total = resp.Synced + resp.Errors
	return resp, nil
}

// syncWorkshopUnit refreshes every instance of one workshop from a single
// remote listing. Returns per-instance synced/error counts; a listing failure
// counts as one error for the whole unit.
func (s *Service) syncWorkshopUnit(ctx context.Context, unit syncUnit) (synced, errCount int) {
	servers, err := s.cloud.ListServers(ctx, unit.provider, workshopScope(&unit.workshop))
	if err != nil {
		rlog.Warn("workshop sweep failed",
			"workshop", unit.workshop.ID,
			"provider", unit.provider.Name,
			"err", err,
		)
		return 0, 1
	}
	byRemoteID := make(map[string]*openstack.Server, len(servers))
	for i := range servers {
		byRemoteID[servers[i].ID] = &servers[i]
	}

	instances, err := s.instances.ListByWorkshop(ctx, unit.workshop.ID)
	if err != nil {
		rlog.Warn("listing instances failed", "workshop", unit.workshop.ID, "err", err)
		return 0, 1
	}
	for i := range instances {
		inst := &instances[i]
		server, ok := byRemoteID[inst.OpenStackID]
		if !ok {
			rlog.Warn("instance missing remotely", "instance", inst.ID, "openstack_id", inst.OpenStackID)
			errCount++
			continue
		}
		if err := s.instances.UpdateSyncState(ctx, inst.ID, server.Status, server.PowerState(), server.IPAddresses()); err != nil {
			rlog.Warn("instance update failed", "instance", inst.ID, "err", err)
			errCount++
			continue
		}
		synced++
	}
	return synced, errCount
}
