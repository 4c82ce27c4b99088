package store

import (
	"fmt"

	"github.com/researchaccelerator-hub/viewcast/config"
)

// New returns the store implementation selected by the configuration.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "dapr":
		return NewDaprStore(cfg.DaprStateStore)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
