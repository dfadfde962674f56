package stackshop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"encore.app/internal/lockout"
	"encore.app/internal/openstack"
	"encore.app/internal/secretbox"
	"encore.app/internal/stackshopconfig"
)

// In-memory store fakes. The pg implementations are thin enough that the
// interesting behavior lives above the store interfaces; these keep tests off
// the database.

type fakeProvidersStore struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]*ProviderRecord
}

func newFakeProvidersStore() *fakeProvidersStore {
	return &fakeProvidersStore{nextID: 1, rows: make(map[int]*ProviderRecord)}
}

func (f *fakeProvidersStore) List(ctx context.Context, enabledOnly bool) ([]ProviderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ProviderRecord
	for id := 1; id < f.nextID; id++ {
		p, ok := f.rows[id]
		if !ok || (enabledOnly && !p.Enabled) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProvidersStore) Get(ctx context.Context, id int) (*ProviderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProvidersStore) Upsert(ctx context.Context, p *ProviderRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.rows {
		if strings.EqualFold(existing.Name, p.Name) {
			cp := *p
			cp.ID = id
			f.rows[id] = &cp
			return id, nil
		}
	}
	cp := *p
	cp.ID = f.nextID
	f.rows[cp.ID] = &cp
	f.nextID++
	return cp.ID, nil
}

type fakeWorkshopsStore struct {
	mu      sync.Mutex
	nextID  int
	rows    map[int]*WorkshopRecord
	listErr map[int]error // providerID -> error for ListByProvider
}

func newFakeWorkshopsStore() *fakeWorkshopsStore {
	return &fakeWorkshopsStore{
		nextID:  1,
		rows:    make(map[int]*WorkshopRecord),
		listErr: make(map[int]error),
	}
}

func (f *fakeWorkshopsStore) Get(ctx context.Context, id int) (*WorkshopRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.rows[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWorkshopsStore) ListByProvider(ctx context.Context, providerID int, enabledOnly bool) ([]WorkshopRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.listErr[providerID]; ok {
		return nil, err
	}
	var out []WorkshopRecord
	for id := 1; id < f.nextID; id++ {
		w, ok := f.rows[id]
		if !ok || w.ProviderID != providerID || (enabledOnly && !w.Enabled) {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

func (f *fakeWorkshopsStore) ListEnabled(ctx context.Context) ([]WorkshopRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []WorkshopRecord
	for id := 1; id < f.nextID; id++ {
		w, ok := f.rows[id]
		if !ok || !w.Enabled {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

func (f *fakeWorkshopsStore) Upsert(ctx context.Context, w *WorkshopRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.rows {
		if existing.ProviderID == w.ProviderID && strings.EqualFold(existing.Name, w.Name) {
			cp := *w
			cp.ID = id
			f.rows[id] = &cp
			return id, nil
		}
	}
	cp := *w
	cp.ID = f.nextID
	f.rows[cp.ID] = &cp
	f.nextID++
	return cp.ID, nil
}

type fakeInstancesStore struct {
	mu   sync.Mutex
	rows map[string]*InstanceRecord
}

func newFakeInstancesStore() *fakeInstancesStore {
	return &fakeInstancesStore{rows: make(map[string]*InstanceRecord)}
}

func (f *fakeInstancesStore) Get(ctx context.Context, id string) (*InstanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.rows[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *inst
	return &cp, nil
}

func (f *fakeInstancesStore) GetByOpenStackID(ctx context.Context, openstackID string) (*InstanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.rows {
		if inst.OpenStackID == openstackID {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeInstancesStore) ListByWorkshop(ctx context.Context, workshopID int) ([]InstanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []InstanceRecord
	for _, inst := range f.rows {
		if inst.WorkshopID == workshopID {
			out = append(out, *inst)
		}
	}
	return out, nil
}

func (f *fakeInstancesStore) Insert(ctx context.Context, inst *InstanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	cp := *inst
	f.rows[cp.ID] = &cp
	return nil
}

func (f *fakeInstancesStore) UpdateStatus(ctx context.Context, id, status, powerState string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.rows[id]
	if !ok {
		return errNotFound
	}
	inst.Status = status
	inst.PowerState = powerState
	return nil
}

func (f *fakeInstancesStore) UpdateSyncState(ctx context.Context, id, status, powerState string, ips []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.rows[id]
	if !ok {
		return errNotFound
	}
	inst.Status = status
	inst.PowerState = powerState
	inst.IPAddresses = append([]string(nil), ips...)
	return nil
}

func (f *fakeInstancesStore) UpdateAssignedUser(ctx context.Context, id, user string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.rows[id]
	if !ok {
		return errNotFound
	}
	inst.AssignedUser = user
	return nil
}

func (f *fakeInstancesStore) SetLockedForWorkshop(ctx context.Context, workshopID int, locked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.rows {
		if inst.WorkshopID == workshopID {
			inst.Locked = locked
		}
	}
	return nil
}

type fakeSessionsStore struct {
	mu   sync.Mutex
	rows map[string]*SessionRecord
	// workshopOf maps instance id -> workshop id so DeleteForWorkshop can join
	// the way the SQL implementation does.
	workshopOf map[string]int
}

func newFakeSessionsStore() *fakeSessionsStore {
	return &fakeSessionsStore{
		rows:       make(map[string]*SessionRecord),
		workshopOf: make(map[string]int),
	}
}

func (f *fakeSessionsStore) Insert(ctx context.Context, s *SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	f.rows[cp.ID] = &cp
	return nil
}

func (f *fakeSessionsStore) GetByToken(ctx context.Context, token string) (*SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.Token == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeSessionsStore) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return errNotFound
	}
	s.ExpiresAt = expiresAt
	return nil
}

func (f *fakeSessionsStore) DeleteByToken(ctx context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.rows {
		if s.Token == token {
			delete(f.rows, id)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSessionsStore) DeleteByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeSessionsStore) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.rows {
		if strings.EqualFold(s.UserID, userID) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionsStore) DeleteForInstance(ctx context.Context, instanceID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.rows {
		if s.InstanceID == instanceID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionsStore) DeleteForWorkshop(ctx context.Context, workshopID int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.rows {
		if f.workshopOf[s.InstanceID] == workshopID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionsStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.rows {
		if s.ExpiresAt.Before(now) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionsStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeNova serves identity plus compute for tests that exercise the real
// provider client end to end.
type fakeNova struct {
	srv     *httptest.Server
	mu      sync.Mutex
	servers map[string]openstack.Server
}

func newFakeNova(t *testing.T) *fakeNova {
	t.Helper()
	fn := &fakeNova{servers: make(map[string]openstack.Server)}
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/auth/tokens", fn.handleAuth)
	mux.HandleFunc("/compute/servers/detail", fn.handleList)
	mux.HandleFunc("/compute/servers/", fn.handleServer)
	fn.srv = httptest.NewServer(mux)
	t.Cleanup(fn.srv.Close)
	return fn
}

func (fn *fakeNova) addServer(s openstack.Server) {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	fn.servers[s.ID] = s
}

func (fn *fakeNova) handleAuth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Subject-Token", "test-token")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token": map[string]any{
			"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
			"catalog": []map[string]any{
				{
					"type": "compute",
					"endpoints": []map[string]any{
						{"interface": "public", "region": "RegionOne", "url": fn.srv.URL + "/compute"},
					},
				},
			},
		},
	})
}

func (fn *fakeNova) handleList(w http.ResponseWriter, r *http.Request) {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	out := struct {
		Servers []openstack.Server `json:"servers"`
	}{}
	for _, s := range fn.servers {
		out.Servers = append(out.Servers, s)
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (fn *fakeNova) handleServer(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/compute/servers/")
	fn.mu.Lock()
	defer fn.mu.Unlock()
	if r.Method == http.MethodPost && strings.HasSuffix(rest, "/remote-consoles") {
		id := strings.TrimSuffix(rest, "/remote-consoles")
		if _, ok := fn.servers[id]; !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"remote_console": map[string]any{
				"protocol": "vnc", "type": "novnc",
				"url": "http://console.invalid/vnc?token=" + id,
			},
		})
		return
	}
	if r.Method == http.MethodPost && strings.HasSuffix(rest, "/action") {
		id := strings.TrimSuffix(rest, "/action")
		if _, ok := fn.servers[id]; !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s, ok := fn.servers[rest]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Server openstack.Server `json:"server"`
	}{Server: s})
}

type testEnv struct {
	svc       *Service
	providers *fakeProvidersStore
	workshops *fakeWorkshopsStore
	instances *fakeInstancesStore
	sessions  *fakeSessionsStore
	nova      *fakeNova
}

func newTestService(t *testing.T) *testEnv {
	t.Helper()
	cfg := stackshopconfig.Config{
		ConsoleSessionTTL: 30 * time.Minute,
		SyncWorkers:       2,
		ProviderTimeout:   5 * time.Second,
		AdminUsers:        []string{"admin"},
		SessionSecret:     "test-secret",
	}
	env := &testEnv{
		providers: newFakeProvidersStore(),
		workshops: newFakeWorkshopsStore(),
		instances: newFakeInstancesStore(),
		sessions:  newFakeSessionsStore(),
		nova:      newFakeNova(t),
	}
	svc := &Service{
		cfg:       cfg,
		box:       secretbox.New(cfg.SessionSecret),
		cloud:     openstack.NewClient(cfg.ProviderTimeout),
		tokens:    newConsoleTokenManager(cfg.SessionSecret, cfg.ConsoleSessionTTL),
		providers: env.providers,
		workshops: env.workshops,
		instances: env.instances,
		sessions:  env.sessions,
	}
	svc.lockouts = lockout.NewScheduler(svc.enforceWorkshopLockoutByID, svc.releaseWorkshopLockoutByID)
	t.Cleanup(svc.lockouts.Shutdown)
	env.svc = svc
	return env
}

// seedProviderWorkshop registers a provider (pointed at the fake cloud) and a
// workshop, returning their ids.
func (env *testEnv) seedProviderWorkshop(t *testing.T, authURL string) (int, int) {
	t.Helper()
	sealed, err := env.svc.box.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("seal password: %v", err)
	}
	providerID, err := env.providers.Upsert(context.Background(), &ProviderRecord{
		Name:     fmt.Sprintf("prov-%d", env.providers.nextID),
		AuthURL:  authURL,
		Username: "svc",
		Password: sealed,
		Region:   "RegionOne",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("upsert provider: %v", err)
	}
	workshopID, err := env.workshops.Upsert(context.Background(), &WorkshopRecord{
		ProviderID: providerID,
		Name:       fmt.Sprintf("workshop-%d", env.workshops.nextID),
		ProjectID:  "proj-1",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("upsert workshop: %v", err)
	}
	return providerID, workshopID
}
