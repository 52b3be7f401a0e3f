// Package catalog holds the recommended models for a council and matches them
// against what the backend has installed.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

// Role hints where a recommended model fits best.
type Role string

const (
	RoleReviewer Role = "reviewer"
	RoleOpinions Role = "opinions"
	RoleExpert   Role = "expert"
	RoleChairman Role = "chairman"
	RoleBackup   Role = "backup"
)

// Model is one recommended model.
type Model struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Size        string `yaml:"size" json:"size"`
	Description string `yaml:"description" json:"description"`
	Role        Role   `yaml:"role" json:"recommended_role"`
}

// Entry is a recommended model annotated with its install state.
type Entry struct {
	Model
	Installed bool `json:"installed"`
}

type file struct {
	Models []Model `yaml:"models"`
}

// Parse decodes a catalog document.
func Parse(data []byte) ([]Model, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing model catalog: %w", err)
	}
	for i, m := range f.Models {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("model catalog entry %d has no name", i)
		}
	}
	return f.Models, nil
}

// Recommended returns the embedded catalog.
func Recommended() []Model {
	models, err := Parse(modelsYAML)
	if err != nil {
		panic(err)
	}
	return models
}

// ForRole returns the first recommended model with the given role.
func ForRole(models []Model, role Role) (Model, bool) {
	for _, m := range models {
		if m.Role == role {
			return m, true
		}
	}
	return Model{}, false
}

// Annotate marks which models are installed. A model counts as installed when
// an installed name matches it exactly or shares its base name (the part
// before the tag), so "phi3.5:latest" matches an installed "phi3.5:mini".
func Annotate(models []Model, installed []string) []Entry {
	exact := make(map[string]bool, len(installed))
	bases := make(map[string]bool, len(installed))
	for _, name := range installed {
		exact[name] = true
		bases[baseName(name)] = true
	}

	entries := make([]Entry, 0, len(models))
	for _, m := range models {
		entries = append(entries, Entry{
			Model:     m,
			Installed: exact[m.Name] || bases[baseName(m.Name)],
		})
	}
	return entries
}

func baseName(model string) string {
	if i := strings.IndexByte(model, ':'); i >= 0 {
		return model[:i]
	}
	return model
}
