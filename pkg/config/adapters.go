package config

import (
	"fmt"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/adapter"
	"github.com/marmos91/fragments/pkg/adapter/rest"
	"github.com/marmos91/fragments/pkg/auth"
	"github.com/marmos91/fragments/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete fragments configuration
//   - httpMetrics: Optional HTTP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Invalid accounts or no adapter enabled
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		authenticator, err := auth.NewBasicAuthenticator(cfg.Auth.Users)
		if err != nil {
			return nil, fmt.Errorf("invalid auth configuration: %w", err)
		}
		if len(cfg.Auth.Users) == 0 {
			logger.Warn("No users configured: every /v1 request will be rejected")
		}

		adapters = append(adapters, rest.New(cfg.Adapters.HTTP, authenticator, httpMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
