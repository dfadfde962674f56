package stackshop

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"encore.dev/rlog"
	"gopkg.in/yaml.v3"
)

// Seed files let an environment bootstrap providers and workshops without a
// management UI. Loading is upsert-based, so re-running against the same file
// is harmless.

type seedFile struct {
	Providers []seedProvider `yaml:"providers"`
	Workshops []seedWorkshop `yaml:"workshops"`
}

type seedProvider struct {
	Name            string `yaml:"name"`
	AuthURL         string `yaml:"authUrl"`
	IdentityVersion string `yaml:"identityVersion"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	UserDomainName  string `yaml:"userDomainName"`
	Region          string `yaml:"region"`
	Enabled         *bool  `yaml:"enabled"`
}

type seedWorkshop struct {
	Provider     string     `yaml:"provider"`
	Name         string     `yaml:"name"`
	ProjectID    string     `yaml:"projectId"`
	ProjectName  string     `yaml:"projectName"`
	LockoutStart *time.Time `yaml:"lockoutStart"`
	LockoutEnd   *time.Time `yaml:"lockoutEnd"`
	Enabled      *bool      `yaml:"enabled"`
}

func (s *Service) loadSeedFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}

	providerIDs := make(map[string]int, len(seed.Providers))
	for i := range seed.Providers {
		sp := &seed.Providers[i]
		name := strings.TrimSpace(sp.Name)
		if name == "" || strings.TrimSpace(sp.AuthURL) == "" {
			return fmt.Errorf("seed provider %d: name and authUrl are required", i)
		}
		sealed, err := s.box.Encrypt(sp.Password)
		if err != nil {
			return fmt.Errorf("sealing password for provider %q: %w", name, err)
		}
		rec := &ProviderRecord{
			Name:            name,
			AuthURL:         strings.TrimSpace(sp.AuthURL),
			IdentityVersion: strings.TrimSpace(sp.IdentityVersion),
			Username:        strings.TrimSpace(sp.Username),
			Password:        sealed,
			UserDomainName:  strings.TrimSpace(sp.UserDomainName),
			Region:          strings.TrimSpace(sp.Region),
			Enabled:         sp.Enabled == nil || *sp.Enabled,
		}
		id, err := s.providers.Upsert(ctx, rec)
		if err != nil {
			return fmt.Errorf("upserting provider %q: %w", name, err)
		}
		providerIDs[name] = id
	}

	for i := range seed.Workshops {
		sw := &seed.Workshops[i]
		name := strings.TrimSpace(sw.Name)
		providerName := strings.TrimSpace(sw.Provider)
		if name == "" || providerName == "" {
			return fmt.Errorf("seed workshop %d: name and provider are required", i)
		}
		providerID, ok := providerIDs[providerName]
		if !ok {
			// Allow referencing a provider created by an earlier run.
			existing, err := s.findProviderByName(ctx, providerName)
			if err != nil {
				return fmt.Errorf("seed workshop %q: provider %q not found", name, providerName)
			}
			providerID = existing.ID
		}
		rec := &WorkshopRecord{
			ProviderID:   providerID,
			Name:         name,
			ProjectID:    strings.TrimSpace(sw.ProjectID),
			ProjectName:  strings.TrimSpace(sw.ProjectName),
			LockoutStart: sw.LockoutStart,
			LockoutEnd:   sw.LockoutEnd,
			Enabled:      sw.Enabled == nil || *sw.Enabled,
		}
		if _, err := s.workshops.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("upserting workshop %q: %w", name, err)
		}
	}

	rlog.Info("seed file loaded",
		"path", path,
		"providers", len(seed.Providers),
		"workshops", len(seed.Workshops),
	)
	return nil
}

func (s *Service) findProviderByName(ctx context.Context, name string) (*ProviderRecord, error) {
	providers, err := s.providers.List(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range providers {
		if strings.EqualFold(providers[i].Name, name) {
			return &providers[i], nil
		}
	}
	return nil, errNotFound
}
