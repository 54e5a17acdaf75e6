// Package inventory loads the device fleet definition and resolves
// target selectors against it.
package inventory

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fleetconf-project/fleetconf/pkg/model"
	"github.com/fleetconf-project/fleetconf/pkg/nameutil"
)

// Inventory is the parsed fleet definition. Read-only to the
// orchestration core.
type Inventory struct {
	Devices   []model.Device               `yaml:"devices"`
	Vars      map[string]string            `yaml:"vars,omitempty"`
	GroupVars map[string]map[string]string `yaml:"group_vars,omitempty"`

	byName map[string]*model.Device
}

// Load reads and validates an inventory file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return Parse(data)
}

// Parse validates an inventory document.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}

	inv.byName = make(map[string]*model.Device, len(inv.Devices))
	for i := range inv.Devices {
		d := &inv.Devices[i]
		if err := nameutil.ValidateDeviceName(d.Name); err != nil {
			return nil, err
		}
		if d.Address == "" {
			return nil, fmt.Errorf("inventory: device %s has no address", d.Name)
		}
		if _, dup := inv.byName[d.Name]; dup {
			return nil, fmt.Errorf("inventory: duplicate device %s", d.Name)
		}
		for _, g := range d.Groups {
			if err := nameutil.ValidateGroupName(g); err != nil {
				return nil, err
			}
		}
		inv.byName[d.Name] = d
	}
	return &inv, nil
}

// Get returns a device by name.
func (inv *Inventory) Get(name string) (model.Device, bool) {
	d, ok := inv.byName[name]
	if !ok {
		return model.Device{}, false
	}
	return *d, true
}

// Select resolves a target selector to a device list, preserving
// inventory order. Supported forms: "all", "group:<name>",
// "role:<name>", a device name, or a comma-separated mix of the above.
func (inv *Inventory) Select(selector string) ([]model.Device, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("inventory: empty target selector")
	}

	wanted := make(map[string]bool)
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		matched, err := inv.selectOne(part)
		if err != nil {
			return nil, err
		}
		for _, name := range matched {
			wanted[name] = true
		}
	}

	// Inventory order keeps batch ordering reproducible across runs.
	var out []model.Device
	for _, d := range inv.Devices {
		if wanted[d.Name] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (inv *Inventory) selectOne(part string) ([]string, error) {
	switch {
	case part == "all":
		names := make([]string, 0, len(inv.Devices))
		for _, d := range inv.Devices {
			names = append(names, d.Name)
		}
		return names, nil

	case strings.HasPrefix(part, "group:"):
		group := strings.TrimPrefix(part, "group:")
		var names []string
		for _, d := range inv.Devices {
			if d.InGroup(group) {
				names = append(names, d.Name)
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("inventory: no devices in group %q", group)
		}
		return names, nil

	case strings.HasPrefix(part, "role:"):
		role := model.DeviceRole(strings.TrimPrefix(part, "role:"))
		var names []string
		for _, d := range inv.Devices {
			if d.Role == role {
				names = append(names, d.Name)
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("inventory: no devices with role %q", role)
		}
		return names, nil

	default:
		if _, ok := inv.byName[part]; !ok {
			return nil, fmt.Errorf("inventory: unknown device %q%s", part, inv.suggest(part))
		}
		return []string{part}, nil
	}
}

// VarsFor merges inventory vars for one device: workspace vars, then
// group vars in group order, then device vars. Later layers win.
func (inv *Inventory) VarsFor(device model.Device) map[string]string {
	merged := make(map[string]string)
	for k, v := range inv.Vars {
		merged[k] = v
	}
	for _, g := range device.Groups {
		for k, v := range inv.GroupVars[g] {
			merged[k] = v
		}
	}
	for k, v := range device.Vars {
		merged[k] = v
	}
	return merged
}

// suggest proposes close device names for a typo'd selector.
func (inv *Inventory) suggest(input string) string {
	var candidates []string
	for _, d := range inv.Devices {
		if strings.Contains(d.Name, input) || strings.HasPrefix(d.Name, input) {
			candidates = append(candidates, d.Name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	return fmt.Sprintf(" (did you mean %s?)", strings.Join(candidates, ", "))
}
