package stackshop

import (
	"context"
	"reflect"
	"testing"

	"encore.app/internal/openstack"
)

func (env *testEnv) decryptedProviderByID(t *testing.T, id int) openstack.Provider {
	t.Helper()
	rec, err := env.providers.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get provider: %v", err)
	}
	provider, err := env.svc.decryptedProvider(rec)
	if err != nil {
		t.Fatalf("decrypt provider: %v", err)
	}
	return provider
}

func TestIngestWorkshop(t *testing.T) {
	env := newTestService(t)
	providerID, workshopID := env.seedProviderWorkshop(t, env.nova.srv.URL)
	env.nova.addServer(openstack.Server{
		ID: "os-1", Name: "web", Status: "ACTIVE", PowerStateCode: 1,
		Addresses: map[string][]openstack.ServerAddress{
			"private": {{Addr: "10.0.0.5"}},
		},
	})
	env.nova.addServer(openstack.Server{ID: "os-2", Name: "db", Status: "SHUTOFF", PowerStateCode: 4})

	workshop, err := env.workshops.Get(context.Background(), workshopID)
	if err != nil {
		t.Fatalf("get workshop: %v", err)
	}
	provider := env.decryptedProviderByID(t, providerID)

	result, err := env.svc.ingestWorkshop(context.Background(), provider, workshop, ingestOptions{AssignUser: "alice"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Created != 2 || result.Updated != 0 {
		t.Fatalf("first ingest: got %+v", result)
	}

	inst, err := env.instances.GetByOpenStackID(context.Background(), "os-1")
	if err != nil {
		t.Fatalf("lookup os-1: %v", err)
	}
	if inst.Status != "ACTIVE" || inst.PowerState != "running" || inst.AssignedUser != "alice" {
		t.Fatalf("ingested record: %+v", inst)
	}
	if !reflect.DeepEqual(inst.IPAddresses, []string{"10.0.0.5"}) {
		t.Fatalf("ips: %v", inst.IPAddresses)
	}

	// Re-ingest dedupes on the remote id.
	result, err = env.svc.ingestWorkshop(context.Background(), provider, workshop, ingestOptions{})
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if result.Created != 0 || result.Updated != 2 {
		t.Fatalf("re-ingest: got %+v", result)
	}
}

func TestIngestWorkshopFiltered(t *testing.T) {
	env := newTestService(t)
	providerID, workshopID := env.seedProviderWorkshop(t, env.nova.srv.URL)
	env.nova.addServer(openstack.Server{ID: "os-1", Status: "ACTIVE"})
	env.nova.addServer(openstack.Server{ID: "os-2", Status: "ACTIVE"})

	workshop, err := env.workshops.Get(context.Background(), workshopID)
	if err != nil {
		t.Fatalf("get workshop: %v", err)
	}
	provider := env.decryptedProviderByID(t, providerID)

	result, err := env.svc.ingestWorkshop(context.Background(), provider, workshop, ingestOptions{
		RemoteIDs: []string{"os-2", " ", "os-unknown"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("filtered ingest: got %+v", result)
	}
	if _, err := env.instances.GetByOpenStackID(context.Background(), "os-1"); err == nil {
		t.Fatalf("os-1 must not be ingested")
	}
}

func TestSyncInstanceReplacesIPList(t *testing.T) {
	env := newTestService(t)
	_, workshopID := env.seedProviderWorkshop(t, env.nova.srv.URL)
	env.nova.addServer(openstack.Server{
		ID: "os-1", Status: "SHUTOFF", PowerStateCode: 4,
		Addresses: map[string][]openstack.ServerAddress{
			"mgmt": {{Addr: "192.168.1.9"}},
		},
	})
	inst := &InstanceRecord{
		OpenStackID: "os-1",
		WorkshopID:  workshopID,
		Status:      "ACTIVE",
		PowerState:  "running",
		IPAddresses: []string{"10.0.0.5", "10.0.0.6"},
	}
	if err := env.instances.Insert(context.Background(), inst); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := env.svc.syncInstance(context.Background(), inst); err != nil {
		t.Fatalf("sync: %v", err)
	}
	got, err := env.instances.Get(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "SHUTOFF" || got.PowerState != "shutdown" {
		t.Fatalf("state not refreshed: %+v", got)
	}
	// The IP list is replaced, not merged.
	if !reflect.DeepEqual(got.IPAddresses, []string{"192.168.1.9"}) {
		t.Fatalf("ips: %v", got.IPAddresses)
	}
}

func TestSyncAllInstances(t *testing.T) {
	env := newTestService(t)
	_, workshopID := env.seedProviderWorkshop(t, env.nova.srv.URL)
	env.nova.addServer(openstack.Server{ID: "os-1", Status: "ACTIVE", PowerStateCode: 1})
	env.nova.addServer(openstack.Server{ID: "os-2", Status: "ACTIVE", PowerStateCode: 1})
	for _, remoteID := range []string{"os-1", "os-2"} {
		if err := env.instances.Insert(context.Background(), &InstanceRecord{
			OpenStackID: remoteID,
			WorkshopID:  workshopID,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	resp, err := env.svc.syncAllInstances(context.Background())
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if resp.Synced != 2 || resp.Errors != 0 || resp.Total != 2 {
		t.Fatalf("sweep: got %+v", resp)
	}
}

func TestSyncAllContainsUnitFailures(t *testing.T) {
	env := newTestService(t)
	// A healthy workshop with one instance, plus a provider whose identity
	// endpoint is unreachable.
	_, workshopID := env.seedProviderWorkshop(t, env.nova.srv.URL)
	env.nova.addServer(openstack.Server{ID: "os-1", Status: "ACTIVE", PowerStateCode: 1})
	if err := env.instances.Insert(context.Background(), &InstanceRecord{
		OpenStackID: "os-1",
		WorkshopID:  workshopID,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	env.seedProviderWorkshop(t, "http://127.0.0.1:1/unreachable")

	resp, err := env.svc.syncAllInstances(context.Background())
	if err != nil {
		t.Fatalf("sweep must not fail outright: %v", err)
	}
	if resp.Synced != 1 {
		t.Fatalf("healthy unit not synced: %+v", resp)
	}
	if resp.Errors != 1 {
		t.Fatalf("failed unit not counted: %+v", resp)
	}
	if resp.Total != resp.Synced+resp.Errors {
		t.Fatalf("total must be synced+errors: %+v", resp)
	}
}

func TestSyncAllCountsMissingRemote(t *testing.T) {
	env := newTestService(t)
	_, workshopID := env.seedProviderWorkshop(t, env.nova.srv.URL)
	env.nova.addServer(openstack.Server{ID: "os-1", Status: "ACTIVE", PowerStateCode: 1})
	for _, remoteID := range []string{"os-1", "os-gone"} {
		if err := env.instances.Insert(context.Background(), &InstanceRecord{
			OpenStackID: remoteID,
			WorkshopID:  workshopID,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	resp, err := env.svc.syncAllInstances(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if resp.Synced != 1 || resp.Errors != 1 || resp.Total != 2 {
		t.Fatalf("sweep: got %+v", resp)
	}
}
