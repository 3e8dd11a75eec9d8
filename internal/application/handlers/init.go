// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/tidstore/internal/infrastructure/config"
)

// Provisioner prepares the backends a configuration uses: tables,
// collections and the like.
type Provisioner func(ctx context.Context, cfg *config.Config) ([]string, error)

// InitHandler handles store initialization.
type InitHandler struct {
	provision Provisioner
}

// NewInitHandler creates a new init handler. provision may be nil.
func NewInitHandler(provision Provisioner) *InitHandler {
	return &InitHandler{
		provision: provision,
	}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath  string
	Provisioned []string
}

// Handle writes the default configuration and provisions its backends.
func (h *InitHandler) Handle(ctx context.Context, basePath string) (*InitResult, error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("tidstore already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	result := &InitResult{ConfigPath: config.ConfigFilePath(basePath)}
	if h.provision != nil {
		result.Provisioned, err = h.provision(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("provisioning backends: %w", err)
		}
	}
	return result, nil
}
