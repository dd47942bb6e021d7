package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prism-engine/editor-host/actions"
	"github.com/prism-engine/editor-host/config"
	"github.com/prism-engine/editor-host/enginebridge"
	"github.com/prism-engine/editor-host/logger"
	"github.com/prism-engine/editor-host/macrocatalog"
	"github.com/prism-engine/editor-host/protocol"
	httptransport "github.com/prism-engine/editor-host/transport/http"
	"github.com/prism-engine/editor-host/transport/stdio"
	"github.com/prism-engine/editor-host/windowing"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "prism-editor-host",
	Short: "Editor-side host for the Prism real-time engine",
	Long: `prism-editor-host launches the separately compiled prism-runtime process,
embeds its output surface into a host window, and bridges commands, console
output, and play/pause control over the engine's message channel.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of the editor host",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("prism-editor-host %s (protocol %s)\n", version, protocol.ProtocolVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	configPath, err := config.ResolveConfigPath()
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := config.EnsureDefaultConfig(configPath); err != nil {
		return fmt.Errorf("failed to create default config: %w", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.GetLevelFromString(cfg.Logging.Level), logger.Format(cfg.Logging.Format), cfg.Logging.Path); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.Server.Debug {
		logger.Default().SetLevel(slog.LevelDebug)
	}

	logger.Info("Editor host starting", "version", cfg.Version, "config", configPath)

	sys := windowing.NewSystem()
	region, err := sys.CreateHostWindow("PrismEditorHost", true)
	if err != nil {
		return fmt.Errorf("failed to create host window: %w", err)
	}

	session, err := enginebridge.NewSession(enginebridge.Options{
		System:               sys,
		Region:               region,
		Executable:           cfg.Engine.Executable,
		ExtraArgs:            cfg.Engine.Args,
		WorkDir:              cfg.Engine.WorkDir,
		DiscoveryInterval:    cfg.Engine.DiscoveryInterval(),
		MaxDiscoveryAttempts: cfg.Engine.MaxDiscoveryAttempts,
		StopGrace:            cfg.Engine.StopGrace(),
		CloseTimeout:         cfg.Engine.CloseTimeout(),
		Transitions: enginebridge.TransitionTable{
			EnterPlaying: cfg.Commands.EnterPlaying,
			ExitPlaying:  cfg.Commands.ExitPlaying,
		},
		HistorySize: cfg.Engine.ConsoleHistory,
		WatchBinary: cfg.Engine.WatchBinary,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine session: %w", err)
	}
	defer session.Close()

	macros := macrocatalog.NewRegistry(cfg.Macros.Enabled)
	var reloadMacros actions.MacroCatalogReloader
	if cfg.Macros.Enabled && len(cfg.Macros.Paths) > 0 {
		if err := macros.LoadFromPathsWithAllowedRoots(cfg.Macros.Paths, cfg.Macros.AllowedRoots); err != nil {
			logger.Warn("Macro catalog loaded with errors", "error", err)
		}
		logger.Info("Macro catalog loaded", "macros", macros.MacroCount())

		reloadMacros = func() map[string]any {
			status := "reloaded"
			if err := macros.LoadFromPathsWithAllowedRoots(cfg.Macros.Paths, cfg.Macros.AllowedRoots); err != nil {
				logger.Warn("Macro catalog reloaded with errors", "error", err)
				status = "reloaded_with_errors"
			}
			return map[string]any{
				"macroCount":     macros.MacroCount(),
				"loadErrorCount": len(macros.LoadErrors()),
				"status":         status,
			}
		}

		if cfg.Macros.AutoReload {
			reloader, err := macrocatalog.StartAutoReload(macros, cfg.Macros.Paths, cfg.Macros.AllowedRoots, nil)
			if err != nil {
				logger.Warn("Macro auto reload unavailable", "error", err)
			} else {
				defer reloader.Close()
			}
		}
	}

	manager := actions.NewManager()
	manager.RegisterDefaults(actions.Deps{
		Session:                     session,
		Macros:                      macros,
		ReloadMacros:                reloadMacros,
		RejectUnknownMacroArguments: cfg.Macros.RejectUnknownArguments,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Enabled {
		server := httptransport.NewServer(cfg, session, manager)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Control server error", "error", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Control server shutdown failed", "error", err)
			}
		}()
	}

	if cfg.Console.Enabled {
		console := stdio.NewConsole(manager, session)
		go func() {
			err := console.Start()
			if errors.Is(err, stdio.ErrQuit) {
				stop()
				return
			}
			if err != nil {
				logger.Error("Operator console error", "error", err)
			}
		}()
	}

	// The UI loop owns the main goroutine until a signal or /quit arrives.
	if err := sys.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("windowing loop failed: %w", err)
	}

	logger.Info("Editor host shutting down")
	return nil
}
