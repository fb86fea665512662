package app

import (
	"context"
	"io"
)

// Bootstrap loads config from the environment, installs the logger and
// builds the App. It is the single entrypoint used by cmd/tavern.
func Bootstrap(ctx context.Context, logOut io.Writer) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	log := NewLogger(logOut, cfg.LogLevel, cfg.LogFormat)
	return New(ctx, cfg, log)
}
