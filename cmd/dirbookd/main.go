package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dirbookd/server/internal/audit"
	"github.com/dirbookd/server/internal/config"
	"github.com/dirbookd/server/internal/console"
	"github.com/dirbookd/server/internal/directory"
	"github.com/dirbookd/server/internal/log"
	"github.com/dirbookd/server/internal/server"
	"github.com/dirbookd/server/internal/session"
	"github.com/dirbookd/server/internal/shutdown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dirbookd",
	Short: "dirbookd - an authenticated networked phone book directory server",
	Version: Version,
}

// Version information (set via ldflags during build).
var Version = "dev"

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the directory server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Port = port
		}

		logger := log.WithComponent("main")

		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		dir, err := directory.Open(cfg.DataDir, cfg.MaxReaders)
		if err != nil {
			return fmt.Errorf("open directory: %w", err)
		}

		auditLog, err := audit.Open(filepath.Join(cfg.DataDir, "audit.db"))
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer auditLog.Close()

		sessCfg := session.Config{
			AuthRateLimit:    time.Duration(cfg.AuthRateLimitSecs) * time.Second,
			MaxLoginAttempts: cfg.MaxLoginAttempts,
			ReadTimeout:      time.Duration(cfg.ReadTimeoutSecs) * time.Second,
			WriteTimeout:     time.Duration(cfg.WriteTimeoutSecs) * time.Second,
		}

		srv := server.New(dir, auditLog, sessCfg)
		addr := fmt.Sprintf("%s:%d", cfg.BindIP, cfg.Port)
		if err := srv.Start(addr, cfg.MetricsAddr); err != nil {
			return fmt.Errorf("start server: %w", err)
		}

		sup := shutdown.New(dir, shutdown.Config{
			WriterAcquireDeadline: time.Duration(cfg.WriterAcquireDeadlineSecs) * time.Second,
			GlobalDeadline:        time.Duration(cfg.ShutdownDeadlineSecs) * time.Second,
		}, srv.Stop)

		shutdownCh := make(chan struct{})
		triggerShutdown := func() {
			select {
			case <-shutdownCh:
			default:
				close(shutdownCh)
			}
		}

		go func() {
			con := console.New(dir, auditLog, os.Stdin, os.Stdout, triggerShutdown)
			con.Run()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("received signal, shutting down")
		case <-shutdownCh:
			logger.Info().Msg("operator requested shutdown")
		}

		res := sup.Run()
		if res.Escalated {
			// Writer acquisition timed out (a session may be stuck) or the
			// snapshot/journal retirement failed; joining session goroutines
			// here could block indefinitely instead of completing the forced
			// exit.
			return fmt.Errorf("shutdown escalated: quiesce or snapshot did not complete, journal left intact")
		}
		srv.Wait()
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to YAML config file")
	serveCmd.Flags().IntP("port", "p", 0, "Listen port (overrides config file)")
}
