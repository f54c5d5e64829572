package driving

import "github.com/custodia-labs/handbook-rag/internal/core/domain"

// SettingsService manages engine settings.
type SettingsService interface {
	// Get retrieves current settings, defaults filled in.
	Get() (*domain.Settings, error)

	// Save persists settings.
	Save(settings *domain.Settings) error

	// Set updates a single setting by dotted key (e.g. "retrieval.top_k").
	Set(key, value string) error

	// Validate checks that current settings are usable.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings

	// ValidateEmbeddingConfig validates the embedding configuration by pinging the provider.
	ValidateEmbeddingConfig() error

	// ValidateGeneratorConfig validates the generator configuration by pinging the provider.
	ValidateGeneratorConfig() error

	// Path returns the settings file location.
	Path() string
}
