package stackshop

import "time"

// ProviderRecord is one configured OpenStack-compatible cloud. The password
// column holds a secretbox-sealed value; use decryptedProvider before handing
// it to the compute client.
type ProviderRecord struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	AuthURL         string    `json:"authUrl"`
	IdentityVersion string    `json:"identityVersion"`
	Username        string    `json:"username"`
	Password        string    `json:"-"`
	UserDomainName  string    `json:"userDomainName"`
	Region          string    `json:"region"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// WorkshopRecord groups instances and maps one-to-one to a remote project.
type WorkshopRecord struct {
	ID           int        `json:"id"`
	ProviderID   int        `json:"providerId"`
	Name         string     `json:"name"`
	ProjectID    string     `json:"projectId"`
	ProjectName  string     `json:"projectName"`
	LockoutStart *time.Time `json:"lockoutStart,omitempty"`
	LockoutEnd   *time.Time `json:"lockoutEnd,omitempty"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// InstanceRecord mirrors one remote virtual machine.
type InstanceRecord struct {
	ID           string    `json:"id"`
	OpenStackID  string    `json:"openstackId"`
	WorkshopID   int       `json:"workshopId"`
	AssignedUser string    `json:"assignedUser,omitempty"`
	Status       string    `json:"status"`
	PowerState   string    `json:"powerState"`
	IPAddresses  []string  `json:"ipAddresses"`
	Locked       bool      `json:"locked"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SessionRecord is a live console authorization for (user, instance).
type SessionRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	InstanceID  string    `json:"instanceId"`
	Token       string    `json:"-"`
	ConsoleType string    `json:"consoleType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
