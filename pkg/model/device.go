package model

// DeviceRole is the coarse functional classification of a device.
type DeviceRole string

const (
	RoleRouter   DeviceRole = "router"
	RoleSwitch   DeviceRole = "switch"
	RoleFirewall DeviceRole = "firewall"
)

// Device is one inventory entry. Name is the stable identity used in
// backups, outcomes, and reports; Address is how the driver reaches it.
type Device struct {
	Name    string            `yaml:"name" json:"name"`
	Address string            `yaml:"address" json:"address"`
	Role    DeviceRole        `yaml:"role,omitempty" json:"role,omitempty"`
	Groups  []string          `yaml:"groups,omitempty" json:"groups,omitempty"`
	Tags    []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Vars    map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
}

// InGroup reports whether the device belongs to the named group.
func (d Device) InGroup(group string) bool {
	for _, g := range d.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// HasTag reports whether the device carries the given tag.
func (d Device) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DeviceInfo is metadata reported by the device itself at backup time.
type DeviceInfo struct {
	Vendor          string `json:"vendor,omitempty"`
	Model           string `json:"model,omitempty"`
	OSVersion       string `json:"os_version,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty"`
	UptimeSeconds   int64  `json:"uptime_seconds,omitempty"`
	ManagementState string `json:"management_state,omitempty"`
}
