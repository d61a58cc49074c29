package stepenv

import (
	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/endpointops/go-deployutils/export"
	"github.com/endpointops/go-deployutils/secretkeys"
)

// NewRepository returns an env.Repository that persists Set and Unset for later workflow steps.
// Keys listed in secretkeys.EnvKey are exported as sensitive values.
func NewRepository(osRepository env.Repository) env.Repository {
	exporter := export.NewExporter(command.NewFactory(osRepository))
	return defaultRepository{
		osRepository: osRepository,
		exporter:     &exporter,
		secretKeys:   secretkeys.NewManager().Load(osRepository),
	}
}

type exporter interface {
	ExportOutput(key, value string) error
	ExportSecretOutput(key, value string) error
}

type defaultRepository struct {
	osRepository env.Repository
	exporter     exporter
	secretKeys   []string
}

// Get ...
func (r defaultRepository) Get(key string) string {
	return r.osRepository.Get(key)
}

// Set ...
func (r defaultRepository) Set(key, value string) error {
	if err := r.osRepository.Set(key, value); err != nil {
		return err
	}
	if r.isSecret(key) {
		return r.exporter.ExportSecretOutput(key, value)
	}
	return r.exporter.ExportOutput(key, value)
}

// Unset ...
func (r defaultRepository) Unset(key string) error {
	if err := r.osRepository.Unset(key); err != nil {
		return err
	}
	return r.exporter.ExportOutput(key, "")
}

// List ...
func (r defaultRepository) List() []string {
	return r.osRepository.List()
}

func (r defaultRepository) isSecret(key string) bool {
	for _, secretKey := range r.secretKeys {
		if secretKey == key {
			return true
		}
	}
	return false
}
