package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"ragworkbench/internal/devbackend"
	"ragworkbench/internal/transport/http/middleware"
)

func newDevBackendCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "devbackend",
		Short: "Run a local stand-in for the ingestion backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if addr == "" {
				addr = cfg.DevBackend.Addr
			}

			gin.SetMode(cfg.App.GinMode)
			backend := devbackend.New(devbackend.Config{
				StepDelay:      time.Duration(cfg.DevBackend.StepDelayMs) * time.Millisecond,
				UploadDir:      cfg.DevBackend.UploadDir,
				MaxUploadBytes: int64(cfg.DevBackend.MaxUploadMB) << 20,
			}, log)
			defer backend.Close()

			router := gin.New()
			router.Use(middleware.RequestLogger(log.Named("devbackend.http")), gin.Recovery())
			backend.Register(router)

			return serveUntilSignal(&http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 5 * time.Second,
			}, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default devbackend.addr)")
	return cmd
}
