package main

import (
	"context"
	"fmt"
	"strconv"

	"moodspend/internal/backend"
	"moodspend/internal/log"
)

// openBackend opens the configured stores. Callers must run Cleanup.
func openBackend(ctx context.Context) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(appConfig)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return result, nil
}

func closeBackend(result *backend.BackendResult) {
	if err := result.Cleanup(); err != nil {
		logger.Error("failed to close storage", log.FieldError, err)
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
