package backend

import (
	"fmt"

	"finboard/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Type:               BackendType(appConfig.DataBackend),
		Fallback:           BackendType(appConfig.StoreFallback),
		SeedFile:           appConfig.StoreSeedFile,
		SQLiteDBPath:       appConfig.SQLiteDBPath,
		FirestoreProjectID: appConfig.FirestoreProjectID,
		Timeout:            appConfig.StoreTimeout,
		CacheSize:          appConfig.CacheSize,
		CacheTTL:           appConfig.CacheTTL,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Fallback != "" {
		if c.Fallback == FirestoreBackend || !c.Fallback.IsValid() {
			return fmt.Errorf("invalid fallback backend: %s", c.Fallback)
		}
		if c.Fallback == c.Type {
			return fmt.Errorf("fallback backend must differ from %s", c.Type)
		}
	}

	if (c.Type == SQLiteBackend || c.Fallback == SQLiteBackend) && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if c.Type == FirestoreBackend && c.FirestoreProjectID == "" {
		return fmt.Errorf("Firestore project ID is required for firestore backend")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, FirestoreBackend}
}
