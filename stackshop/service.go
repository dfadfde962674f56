package stackshop

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"encore.dev"
	"encore.dev/config"
	"encore.dev/rlog"

	"encore.app/internal/lockout"
	"encore.app/internal/openstack"
	"encore.app/internal/secretbox"
	"encore.app/internal/stackshopconfig"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config is the resolved runtime configuration.
type Config = stackshopconfig.Config

// stackshopEncoreCfg provides access to the Encore-managed config defaults.
//
// The schema is defined in a shared internal package, but config.Load must be
// called from within a service package (per Encore rules).
var stackshopEncoreCfg = config.Load[stackshopconfig.EncoreConfig]()

var secrets struct {
	StackshopSessionSecret         string
	StackshopPreviousSessionSecret string
	StackshopInternalToken         string
}

//encore:service
type Service struct {
	cfg       Config
	db        *sql.DB
	box       *secretbox.Box
	cloud     *openstack.Client
	lockouts  *lockout.Scheduler
	tokens    *consoleTokenManager
	providers providersStore
	workshops workshopsStore
	instances instancesStore
	sessions  sessionsStore
}

var defaultService *Service

// DefaultService exposes the singleton to sibling service packages (cron
// bridge endpoints, CLI helpers). Nil until initService has run.
func DefaultService() *Service { return defaultService }

func initService() (*Service, error) {
	meta := encore.Meta()
	rlog.Info("initializing stackshop service",
		"environment_name", meta.Environment.Name,
		"environment_type", meta.Environment.Type,
		"app_id", meta.AppID,
	)

	cfg := stackshopconfig.LoadConfig(stackshopEncoreCfg, stackshopconfig.Secrets{
		SessionSecret:         stackshopconfig.SecretOrEnv(secrets.StackshopSessionSecret, "STACKSHOP_SESSION_SECRET"),
		PreviousSessionSecret: stackshopconfig.SecretOrEnv(secrets.StackshopPreviousSessionSecret, "STACKSHOP_PREVIOUS_SESSION_SECRET"),
		InternalToken:         stackshopconfig.SecretOrEnv(secrets.StackshopInternalToken, "STACKSHOP_INTERNAL_TOKEN"),
	})

	db, err := openStackshopDB(context.Background())
	if err != nil {
		return nil, fmt.Errorf("postgres open failed: %w", err)
	}
	if db != nil {
		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres ping failed: %w", err)
		}
	}

	svc := &Service{
		cfg:       cfg,
		db:        db,
		box:       secretbox.New(cfg.SessionSecret, cfg.PreviousSessionSecret),
		cloud:     openstack.NewClient(cfg.ProviderTimeout),
		tokens:    newConsoleTokenManager(cfg.SessionSecret, cfg.ConsoleSessionTTL),
		providers: newPGProvidersStore(db),
		workshops: newPGWorkshopsStore(db),
		instances: newPGInstancesStore(db),
		sessions:  newPGSessionsStore(db),
	}
	svc.lockouts = lockout.NewScheduler(svc.enforceWorkshopLockoutByID, svc.releaseWorkshopLockoutByID)

	if cfg.SeedFile != "" {
		if err := svc.loadSeedFile(context.Background(), cfg.SeedFile); err != nil {
			rlog.Warn("seed file load failed", "path", cfg.SeedFile, "err", err)
		}
	}

	if err := svc.initLockouts(context.Background()); err != nil {
		// Timer state is rebuilt from workshop rows; a failure here must not
		// keep the API down. Operators can re-run via the reschedule endpoint.
		rlog.Error("lockout initialization failed", "err", err)
	}

	svc.startCronFallbackLoops()

	defaultService = svc
	return svc, nil
}

// Shutdown stops scheduling further lockout timers. Pending windows are
// re-derived from workshop configuration on the next startup.
func (s *Service) Shutdown(force context.Context) {
	if s.lockouts != nil {
		s.lockouts.Shutdown()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// decryptedProvider converts a stored provider row into the client's view,
// unsealing the password.
func (s *Service) decryptedProvider(rec *ProviderRecord) (openstack.Provider, error) {
	password, err := s.box.Decrypt(rec.Password)
	if err != nil {
		return openstack.Provider{}, fmt.Errorf("provider %s: %w", rec.Name, err)
	}
	return openstack.Provider{
		ID:              rec.ID,
		Name:            rec.Name,
		AuthURL:         rec.AuthURL,
		IdentityVersion: rec.IdentityVersion,
		Username:        rec.Username,
		Password:        password,
		UserDomainName:  rec.UserDomainName,
		Region:          rec.Region,
	}, nil
}

// workshopScope builds the project scope a workshop's remote calls run under.
func workshopScope(w *WorkshopRecord) openstack.ProjectScope {
	return openstack.ProjectScope{
		ProjectID:   w.ProjectID,
		ProjectName: w.ProjectName,
	}
}
