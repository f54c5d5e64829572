package services

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// ErrUnknownSetting indicates a settings key that does not exist.
var ErrUnknownSetting = errors.New("unknown setting")

// setting binds a dotted config key to a field of domain.Settings.
// Secrets are never written back when empty.
type setting struct {
	key    string
	field  func(s *domain.Settings) any
	secret bool
}

// settingsFields lists every persisted setting.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
var settingsFields = []setting{
	{key: "chunking.max_chunk_size", field: func(s *domain.Settings) any { return &s.Chunking.MaxChunkSize }},
	{key: "chunking.overlap_units", field: func(s *domain.Settings) any { return &s.Chunking.OverlapUnits }},

	{key: "embedding.provider", field: func(s *domain.Settings) any { return &s.Embedding.Provider }},
	{key: "embedding.model", field: func(s *domain.Settings) any { return &s.Embedding.Model }},
	{key: "embedding.dimensions", field: func(s *domain.Settings) any { return &s.Embedding.Dimensions }},
	{key: "embedding.base_url", field: func(s *domain.Settings) any { return &s.Embedding.BaseURL }},
	{key: "embedding.api_key", field: func(s *domain.Settings) any { return &s.Embedding.APIKey }, secret: true},
	{key: "embedding.model_dir", field: func(s *domain.Settings) any { return &s.Embedding.ModelDir }},

	{key: "index.backend", field: func(s *domain.Settings) any { return &s.Index.Backend }},
	{key: "index.postgres_dsn", field: func(s *domain.Settings) any { return &s.Index.PostgresDSN }, secret: true},

	{key: "retrieval.top_k", field: func(s *domain.Settings) any { return &s.Retrieval.TopK }},
	{key: "retrieval.over_fetch", field: func(s *domain.Settings) any { return &s.Retrieval.OverFetch }},
	{key: "retrieval.min_score", field: func(s *domain.Settings) any { return &s.Retrieval.MinScore }},
	{key: "retrieval.query_timeout", field: func(s *domain.Settings) any { return &s.Retrieval.QueryTimeout }},
	{key: "retrieval.lexical_boost", field: func(s *domain.Settings) any { return &s.Retrieval.LexicalBoost }},
	{key: "retrieval.recency_boost", field: func(s *domain.Settings) any { return &s.Retrieval.RecencyBoost }},
	{key: "retrieval.recency_half_life", field: func(s *domain.Settings) any { return &s.Retrieval.RecencyHalfLife }},

	{key: "prompt.max_context_chars", field: func(s *domain.Settings) any { return &s.Prompt.MaxContextChars }},

	{key: "generation.provider", field: func(s *domain.Settings) any { return &s.Generation.Provider }},
	{key: "generation.model", field: func(s *domain.Settings) any { return &s.Generation.Model }},
	{key: "generation.base_url", field: func(s *domain.Settings) any { return &s.Generation.BaseURL }},
	{key: "generation.api_key", field: func(s *domain.Settings) any { return &s.Generation.APIKey }, secret: true},
	{key: "generation.timeout", field: func(s *domain.Settings) any { return &s.Generation.Timeout }},

	{key: "ingestion.workers", field: func(s *domain.Settings) any { return &s.Ingestion.Workers }},
	{key: "ingestion.batch_size", field: func(s *domain.Settings) any { return &s.Ingestion.BatchSize }},
	{key: "ingestion.requests_per_second", field: func(s *domain.Settings) any { return &s.Ingestion.RequestsPerSecond }},
	{key: "ingestion.max_retries", field: func(s *domain.Settings) any { return &s.Ingestion.MaxRetries }},
	{key: "ingestion.initial_backoff", field: func(s *domain.Settings) any { return &s.Ingestion.InitialBackoff }},
	{key: "ingestion.max_backoff", field: func(s *domain.Settings) any { return &s.Ingestion.MaxBackoff }},

	{key: "cache.redis_addr", field: func(s *domain.Settings) any { return &s.Cache.RedisAddr }},
	{key: "cache.redis_password", field: func(s *domain.Settings) any { return &s.Cache.RedisPassword }, secret: true},
	{key: "cache.redis_db", field: func(s *domain.Settings) any { return &s.Cache.RedisDB }},
	{key: "cache.ttl", field: func(s *domain.Settings) any { return &s.Cache.TTL }},
}

// SettingsService manages engine settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
// The aiValidator is optional; without it provider checks are skipped.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current settings. Keys missing from the store keep
// their defaults. When the embedding provider changes and no model is
// configured, the provider's default model is used.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings()

	for _, f := range settingsFields {
		raw, ok := s.configStore.Get(f.key)
		if !ok {
			continue
		}
		if err := assign(f.field(&settings), raw, f.key); err != nil {
			return nil, err
		}
	}

	s.fillModelDefaults(&settings, s.isSet)
	return &settings, nil
}

// Save persists settings in one write. Empty secrets are not written so
// a stored key is kept.
func (s *SettingsService) Save(settings *domain.Settings) error {
	values := make(map[string]any, len(settingsFields))
	for _, f := range settingsFields {
		value := storedValue(f.field(settings))
		if f.secret && value == "" {
			continue
		}
		values[f.key] = value
	}
	if err := s.configStore.SetMany(values); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Set updates a single setting from its string form and persists it.
// The resulting settings must validate.
func (s *SettingsService) Set(key, value string) error {
	f, ok := lookupSetting(key)
	if !ok {
		return fmt.Errorf("%w: %s (known: %s)", ErrUnknownSetting, key, strings.Join(SettingKeys(), ", "))
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := parseInto(f.field(settings), key, value); err != nil {
		return err
	}
	if key == "embedding.provider" {
		s.fillModelDefaults(settings, func(string) bool { return false })
	}
	if key == "generation.provider" {
		settings.Generation.Model = ""
		s.fillModelDefaults(settings, s.isSet)
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	// A provider change carries its model defaults in the same write.
	values := map[string]any{key: storedValue(f.field(settings))}
	switch key {
	case "embedding.provider":
		values["embedding.model"] = settings.Embedding.Model
		values["embedding.dimensions"] = settings.Embedding.Dimensions
	case "generation.provider":
		values["generation.model"] = settings.Generation.Model
	}
	if err := s.configStore.SetMany(values); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Validate checks that current settings are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return settings.Validate()
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// ValidateEmbeddingConfig validates the embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateGeneratorConfig validates the generator configuration by pinging the provider.
func (s *SettingsService) ValidateGeneratorConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateGenerator(&settings.Generation)
}

// Path returns the settings file location.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}

// SettingKeys returns every settings key in sorted order.
func SettingKeys() []string {
	keys := make([]string, len(settingsFields))
	for i, f := range settingsFields {
		keys[i] = f.key
	}
	sort.Strings(keys)
	return keys
}

// SettingValue returns the string form of key in settings.
func SettingValue(settings *domain.Settings, key string) (string, bool) {
	f, ok := lookupSetting(key)
	if !ok {
		return "", false
	}
	return fmt.Sprint(storedValue(f.field(settings))), true
}

// fillModelDefaults picks the provider's default model and the model's
// known dimension for every value that isSet reports as not configured.
func (s *SettingsService) fillModelDefaults(settings *domain.Settings, isSet func(key string) bool) {
	if !isSet("embedding.model") || settings.Embedding.Model == "" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[settings.Embedding.Provider]
	}
	if !isSet("embedding.dimensions") || settings.Embedding.Dimensions == 0 {
		settings.Embedding.Dimensions = domain.EmbeddingDimensions()[settings.Embedding.Model]
	}
	if settings.Generation.Model == "" {
		settings.Generation.Model = domain.DefaultGeneratorModels()[settings.Generation.Provider]
	}
}

func (s *SettingsService) isSet(key string) bool {
	_, ok := s.configStore.Get(key)
	return ok
}

func lookupSetting(key string) (setting, bool) {
	for _, f := range settingsFields {
		if f.key == key {
			return f, true
		}
	}
	return setting{}, false
}

// assign copies a value read from the config store into ptr. Durations are
// stored as strings such as "10s".
func assign(ptr, raw any, key string) error {
	switch v := raw.(type) {
	case string:
		return parseInto(ptr, key, v)
	case int64:
		return assignNumber(ptr, key, float64(v), raw)
	case int:
		return assignNumber(ptr, key, float64(v), raw)
	case float64:
		return assignNumber(ptr, key, v, raw)
	default:
		return parseInto(ptr, key, fmt.Sprint(raw))
	}
}

// assignNumber stores a decoded number. TOML decodes integers as int64
// and a float may be written where an integer is expected.
func assignNumber(ptr any, key string, n float64, raw any) error {
	switch p := ptr.(type) {
	case *int:
		if n != math.Trunc(n) {
			return fmt.Errorf("%w: %s=%v: not an integer", domain.ErrInvalidInput, key, raw)
		}
		*p = int(n)
	case *float64:
		*p = n
	default:
		return parseInto(ptr, key, fmt.Sprint(raw))
	}
	return nil
}

// parseInto parses value into the field behind ptr.
func parseInto(ptr any, key, value string) error {
	value = strings.TrimSpace(value)
	invalid := func(err error) error {
		return fmt.Errorf("%w: %s=%q: %v", domain.ErrInvalidInput, key, value, err)
	}

	switch p := ptr.(type) {
	case *string:
		*p = value
	case *int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalid(err)
		}
		*p = n
	case *float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return invalid(err)
		}
		*p = f
	case *time.Duration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return invalid(err)
		}
		*p = d
	case *domain.EmbeddingProvider:
		*p = domain.EmbeddingProvider(value)
	case *domain.GeneratorProvider:
		*p = domain.GeneratorProvider(value)
	case *domain.IndexBackend:
		*p = domain.IndexBackend(value)
	default:
		return fmt.Errorf("setting %s has unsupported type %T", key, ptr)
	}
	return nil
}

// storedValue returns the value written to the config store for the
// field behind ptr.
func storedValue(ptr any) any {
	switch p := ptr.(type) {
	case *string:
		return *p
	case *int:
		return *p
	case *float64:
		return *p
	case *time.Duration:
		return p.String()
	case *domain.EmbeddingProvider:
		return string(*p)
	case *domain.GeneratorProvider:
		return string(*p)
	case *domain.IndexBackend:
		return string(*p)
	default:
		return nil
	}
}
