// Package habits parses habits service flags and launches the service.
package habits

import (
	"context"
	"flag"

	entrypoint "github.com/wird-app/wird/internal/platform/cmd"
	server "github.com/wird-app/wird/internal/services/habits/app"
)

// Config holds habits command configuration.
type Config struct {
	Port int `env:"WIRD_HABITS_PORT" envDefault:"8091"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The habits gRPC server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the habits runtime service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceHabits, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
