package secretkeys

import (
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
)

const (
	// EnvKey holds the comma separated list of env var keys whose values are secrets.
	EnvKey    = "DEPLOY_SECRET_ENV_KEY_LIST"
	separator = ","
)

// Manager ...
type Manager interface {
	Load(envRepository env.Repository) []string
	Format(keys []string) string
}

type manager struct {
}

// NewManager ...
func NewManager() Manager {
	return manager{}
}

func (manager) Load(envRepository env.Repository) []string {
	value := envRepository.Get(EnvKey)
	if value == "" {
		return nil
	}
	return strings.Split(value, separator)
}

func (manager) Format(keys []string) string {
	return strings.Join(keys, separator)
}
