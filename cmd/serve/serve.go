// file: cmd/serve/serve.go

package serve

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ha1tch/blockalloc/internal/config"
	"github.com/ha1tch/blockalloc/internal/server"
	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// ServeOptions configures the HTTP API
type ServeOptions struct {
	Server server.Config
	Logger zerolog.Logger
}

// DefaultServeOptions returns default options for Serve
func DefaultServeOptions() *ServeOptions {
	return &ServeOptions{
		Server: server.Config{
			Listen:            config.DefaultListen,
			AuditDisplayLimit: config.DefaultAuditDisplayLimit,
		},
		Logger: zerolog.Nop(),
	}
}

// Serve exposes the disk over HTTP until ctx is cancelled
func Serve(ctx context.Context, engine *vdisk.Engine, opts *ServeOptions) error {
	if opts == nil {
		opts = DefaultServeOptions()
	}

	srv := server.NewServer(opts.Server, engine, opts.Logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
