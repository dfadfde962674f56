package openstack

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Provider describes one configured OpenStack-compatible cloud.
// Credentials must already be decrypted by the caller.
type Provider struct {
	ID              int
	Name            string
	AuthURL         string
	IdentityVersion string
	Username        string
	Password        string
	UserDomainName  string
	Region          string
}

// ProjectScope identifies the project a token should be scoped to.
// Either ProjectID or ProjectName (with DomainName) must be set.
type ProjectScope struct {
	ProjectID   string
	ProjectName string
	DomainName  string
}

func (s ProjectScope) key() string {
	if strings.TrimSpace(s.ProjectID) != "" {
		return "id:" + strings.TrimSpace(s.ProjectID)
	}
	return "name:" + strings.ToLower(strings.TrimSpace(s.DomainName)) + "/" + strings.ToLower(strings.TrimSpace(s.ProjectName))
}

// ConsoleType is the abstract console variant requested by a user.
type ConsoleType string

const (
	ConsoleNoVNC  ConsoleType = "novnc"
	ConsoleVNC    ConsoleType = "vnc"
	ConsoleSerial ConsoleType = "serial"
	ConsoleSpice  ConsoleType = "spice"
	ConsoleRDP    ConsoleType = "rdp"
	ConsoleMKS    ConsoleType = "mks"
)

// ParseConsoleType normalizes a user-supplied console type string.
func ParseConsoleType(raw string) (ConsoleType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "novnc", "":
		return ConsoleNoVNC, nil
	case "vnc":
		return ConsoleVNC, nil
	case "serial":
		return ConsoleSerial, nil
	case "spice":
		return ConsoleSpice, nil
	case "rdp":
		return ConsoleRDP, nil
	case "mks":
		return ConsoleMKS, nil
	default:
		return "", fmt.Errorf("unknown console type %q", raw)
	}
}

// Identity (keystone) wire types.

type authRequest struct {
	Auth authPayload `json:"auth"`
}

type authPayload struct {
	Identity authIdentity `json:"identity"`
	Scope    *authScope   `json:"scope,omitempty"`
}

type authIdentity struct {
	Methods  []string     `json:"methods"`
	Password authPassword `json:"password"`
}

type authPassword struct {
	User authUser `json:"user"`
}

type authUser struct {
	Name     string     `json:"name"`
	Domain   authDomain `json:"domain"`
	Password string     `json:"password"`
}

type authDomain struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

type authScope struct {
	Project authScopeProject `json:"project"`
}

type authScopeProject struct {
	ID     string      `json:"id,omitempty"`
	Name   string      `json:"name,omitempty"`
	Domain *authDomain `json:"domain,omitempty"`
}

type tokenResponse struct {
	Token struct {
		ExpiresAt time.Time      `json:"expires_at"`
		Catalog   []CatalogEntry `json:"catalog"`
	} `json:"token"`
}

// CatalogEntry is one service from the identity service catalog.
type CatalogEntry struct {
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	Endpoints []CatalogEndpoint `json:"endpoints"`
}

type CatalogEndpoint struct {
	Interface string `json:"interface"`
	Region    string `json:"region"`
	RegionID  string `json:"region_id"`
	URL       string `json:"url"`
}

// Compute (nova) wire types.

type Server struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name"`
	Status         string                     `json:"status"`
	PowerStateCode int                        `json:"OS-EXT-STS:power_state"`
	TaskState      string                     `json:"OS-EXT-STS:task_state"`
	Addresses      map[string][]ServerAddress `json:"addresses"`
}

type ServerAddress struct {
	Addr    string `json:"addr"`
	Type    string `json:"OS-EXT-IPS:type"`
	Version int    `json:"version"`
}

var powerStateNames = map[int]string{
	0: "nostate",
	1: "running",
	3: "paused",
	4: "shutdown",
	6: "crashed",
	7: "suspended",
}

// PowerState maps nova's numeric power state to a stable name.
func (s *Server) PowerState() string {
	if name, ok := powerStateNames[s.PowerStateCode]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", s.PowerStateCode)
}

// IPAddresses flattens every network's address list into one ordered slice.
// Networks are visited in sorted name order so the result is deterministic.
func (s *Server) IPAddresses() []string {
	if len(s.Addresses) == 0 {
		return nil
	}
	networks := make([]string, 0, len(s.Addresses))
	for name := range s.Addresses {
		networks = append(networks, name)
	}
	sort.Strings(networks)
	var out []string
	for _, name := range networks {
		for _, addr := range s.Addresses[name] {
			if strings.TrimSpace(addr.Addr) == "" {
				continue
			}
			out = append(out, addr.Addr)
		}
	}
	return out
}

type serverListResponse struct {
	Servers []Server `json:"servers"`
}

type serverResponse struct {
	Server Server `json:"server"`
}

type remoteConsoleRequest struct {
	RemoteConsole remoteConsoleSpec `json:"remote_console"`
}

type remoteConsoleSpec struct {
	Protocol string `json:"protocol"`
	Type     string `json:"type"`
}

type remoteConsoleResponse struct {
	RemoteConsole struct {
		Protocol string `json:"protocol"`
		Type     string `json:"type"`
		URL      string `json:"url"`
	} `json:"remote_console"`
}
