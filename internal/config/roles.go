package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/guillermoBallester/tally/internal/core/domain"
)

// RolesFile is the on-disk shape of the role keyword file:
//
//	roles:
//	  region: [zone, district]
//	  revenue: [gross]
type RolesFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadRoleKeywords reads a YAML roles file and returns the extra keywords per
// role. An empty path yields nil.
func LoadRoleKeywords(path string) (map[domain.Role][]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roles file: %w", err)
	}

	var rf RolesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing roles YAML: %w", err)
	}

	out, err := validateRoles(rf)
	if err != nil {
		return nil, fmt.Errorf("validating roles file: %w", err)
	}
	return out, nil
}

func validateRoles(rf RolesFile) (map[domain.Role][]string, error) {
	out := make(map[domain.Role][]string, len(rf.Roles))
	for name, keywords := range rf.Roles {
		role, ok := domain.ParseRole(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return nil, fmt.Errorf("roles[%q]: unknown role", name)
		}
		for i, kw := range keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("roles[%q][%d]: empty keyword", name, i)
			}
		}
		out[role] = append(out[role], keywords...)
	}
	return out, nil
}
