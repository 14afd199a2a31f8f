// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the evidence API over HTTP",
	Long: `Serve exposes retrieve, outcome, and client context as a JSON API:

  POST /v1/evidence                 retrieve ranked evidence
  POST /v1/clients/:id/outcomes     report an interaction summary
  GET  /v1/clients/:id/context      show a client's context
  GET  /healthz                     store health

SIGHUP reloads the entity registry, so companies added with seed become
resolvable without a restart. The server stops gracefully on interrupt.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: server.addr)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, cfg, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if debug, _ := cmd.Flags().GetBool("debug"); !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go watchReload(cmd.Context(), hup, func(ctx context.Context) error {
		return rt.ReloadRegistry(ctx, cfg.Planner)
	}, logger.Named("registry"))

	srv := server.New(rt.Engine, rt.Store, cfg.Server, logger.Named("server"))
	return srv.Run(cmd.Context())
}

// watchReload calls reload for every signal received until ctx is done.
func watchReload(ctx context.Context, sig <-chan os.Signal, reload func(context.Context) error, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			if err := reload(ctx); err != nil {
				log.Warn("registry reload failed", zap.Error(err))
				continue
			}
			log.Info("registry reloaded")
		}
	}
}
