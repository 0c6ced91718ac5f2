package logger

import (
	"go.uber.org/zap"

	"hanquiz/internal/config"
)

// New builds the process logger: structured JSON in production, console
// output everywhere else.
func New(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
