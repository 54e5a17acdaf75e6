// Package nameutil provides device and template name validation for fleetconf.
package nameutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/fleetconf-project/fleetconf/pkg/errclass"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateDeviceName checks a device hostname for filesystem safety.
// Device names become part of backup file names, so the same rules apply
// as for any on-disk identifier.
func ValidateDeviceName(name string) error {
	return validate("device name", name)
}

// ValidateGroupName checks an inventory group name.
func ValidateGroupName(name string) error {
	return validate("group name", name)
}

// ValidateTemplateID checks a template identifier.
func ValidateTemplateID(id string) error {
	return validate("template id", id)
}

func validate(what, name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessagef("%s must not be empty", what)
	}

	// NFC normalize before pattern checks
	name = norm.NFC.String(name)

	if strings.Contains(name, "..") {
		return errclass.ErrNameInvalid.WithMessagef("%s must not contain '..': %s", what, name)
	}
	if strings.ContainsAny(name, "/\\") {
		return errclass.ErrNameInvalid.WithMessagef("%s must not contain separators: %s", what, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("%s must not contain control characters: %q", what, name)
		}
	}
	if !nameRegex.MatchString(name) {
		return errclass.ErrNameInvalid.WithMessagef("%s must match [a-zA-Z0-9._-]+: %s", what, name)
	}
	return nil
}
