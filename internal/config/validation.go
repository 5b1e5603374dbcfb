package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/stokerbuild/stoker/internal/domain"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateSource(&cfg.Source); err != nil {
		return err
	}
	if err := validateRegistry(&cfg.Registry); err != nil {
		return err
	}
	if err := validateWatch(&cfg.Watch); err != nil {
		return err
	}
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	return nil
}

func validateSource(cfg *SourceConfig) error {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewValidationError("source.root", fmt.Sprintf("does not exist: %s", cfg.Root))
		}
		return fmt.Errorf("error accessing source.root: %w", err)
	}
	if !info.IsDir() {
		return domain.NewValidationError("source.root", fmt.Sprintf("is not a directory: %s", cfg.Root))
	}

	if cfg.GranularityMS < 1 {
		return domain.NewValidationError("source.granularity_ms", "must be at least 1")
	}
	if cfg.GranularityMS > 60000 {
		return domain.NewValidationError("source.granularity_ms", "cannot exceed 60000 (1 minute)")
	}
	return nil
}

func validateRegistry(cfg *RegistryConfig) error {
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.Path == "" {
			return domain.NewValidationError("registry.path", "cannot be empty for the sqlite driver")
		}
	case DriverMemory:
	default:
		return domain.NewValidationError("registry.driver",
			fmt.Sprintf("unknown driver %q (expected %s or %s)", cfg.Driver, DriverSQLite, DriverMemory))
	}
	return nil
}

func validateWatch(cfg *WatchConfig) error {
	if cfg.IntervalMS < 100 {
		return domain.NewValidationError("watch.interval_ms", "must be at least 100")
	}
	if cfg.IntervalMS > 3600000 {
		return domain.NewValidationError("watch.interval_ms", "cannot exceed 3600000 (1 hour)")
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return domain.NewValidationError("server.port", "must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return domain.NewValidationError("server.host", "cannot be empty")
	}

	if cfg.ExternalURL != "" {
		if err := validateExternalURL(cfg.ExternalURL, "server.external_url", []string{"http", "https"}); err != nil {
			return err
		}
	}
	return nil
}

// validateExternalURL validates that a URL is well-formed and uses an
// allowed scheme.
func validateExternalURL(rawURL, fieldName string, allowedSchemes []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}

	if parsed.Host == "" {
		return domain.NewValidationError(fieldName, "must include a host")
	}

	for _, scheme := range allowedSchemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			return nil
		}
	}
	return domain.NewValidationError(fieldName,
		fmt.Sprintf("must use one of these schemes: %s", strings.Join(allowedSchemes, ", ")))
}
