// Package render turns configuration templates plus inventory variables
// into device configuration text.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/nameutil"
)

// Renderer loads templates from a directory by id (<id>.tmpl).
type Renderer struct {
	dir string
}

// New creates a renderer rooted at dir.
func New(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// Render expands templateID with vars. Referencing a variable that is
// not defined fails with E_UNDEFINED_VARIABLE rather than emitting an
// empty value: a silently incomplete configuration pushed to a fleet is
// exactly the failure mode this tool exists to prevent.
func (r *Renderer) Render(templateID string, vars map[string]string) (string, error) {
	if err := nameutil.ValidateTemplateID(templateID); err != nil {
		return "", err
	}

	path := filepath.Join(r.dir, templateID+".tmpl")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("template %s not found in %s", templateID, r.dir)
		}
		return "", fmt.Errorf("read template: %w", err)
	}
	return renderText(templateID, string(raw), vars)
}

// List returns the available template ids.
func (r *Renderer) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read templates dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tmpl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".tmpl"))
	}
	return ids, nil
}

func renderText(name, text string, vars map[string]string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}

	if vars == nil {
		vars = map[string]string{}
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		if strings.Contains(err.Error(), "map has no entry for key") {
			return "", errclass.ErrUndefinedVariable.WithMessagef("template %s: %v", name, err)
		}
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return sb.String(), nil
}
