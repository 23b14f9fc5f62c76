package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mizuki-dev/guildgate/internal/app"
	"github.com/mizuki-dev/guildgate/internal/config"
	"github.com/mizuki-dev/guildgate/internal/tools/reportui"
)

func main() {
	root := &cobra.Command{
		Use:           "guildgate",
		Short:         "OAuth role-grant backend for Discord communities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newDispatchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the callback server and background loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("http server listening", "addr", cfg.HTTPAddr)
				if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return a.Server.Shutdown(shutdownCtx)
			})
			g.Go(func() error { return a.SnapshotLoop(ctx) })
			g.Go(func() error { return a.SweepLoop(ctx) })

			err = g.Wait()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if obsErr := a.Observability.Shutdown(shutdownCtx); obsErr != nil {
				logger.Warn("observability shutdown failed", "error", obsErr)
			}
			return err
		},
	}
}

func newDispatchCommand() *cobra.Command {
	var guildID string
	var plain bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Join all authorized users into a guild and report outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = a.Observability.Shutdown(shutdownCtx)
			}()

			report := a.Dispatch.DispatchJoin(ctx, guildID)

			switch {
			case asJSON:
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			case plain:
				fmt.Print(reportui.Render(report))
				return nil
			default:
				return reportui.Show(report)
			}
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "target guild id")
	cmd.Flags().BoolVar(&plain, "plain", false, "print a static report instead of the pager")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw report as JSON")
	_ = cmd.MarkFlagRequired("guild")
	return cmd
}
