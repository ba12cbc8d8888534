package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/minidb/minidb/internal/acl"
	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/config"
	"github.com/minidb/minidb/internal/logging"
	"github.com/minidb/minidb/internal/metrics"
	"github.com/minidb/minidb/internal/pipeline"
	"github.com/minidb/minidb/internal/server"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "minidbd",
	Short: "minidbd is the single-node minidb storage and command server",
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TCP command server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logging.Init(logging.Config{Level: logging.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
		log := logging.WithComponent("minidbd")

		if err := os.Chdir(cfg.DataDir); err != nil {
			return fmt.Errorf("serve: chdir %s: %w", cfg.DataDir, err)
		}

		if cfg.MetricsListen != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				log.Info().Str("addr", cfg.MetricsListen).Msg("metrics listening")
				if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
					log.Error().Err(err).Msg("metrics server exited")
				}
			}()
		}

		engine := pipeline.NewEngine(cfg.TransactionCapacity, cfg.ACLEnforced, log)
		srv := server.New(server.Config{
			Listen:                   cfg.Listen,
			WorkerPoolSize:           cfg.WorkerPoolSize,
			MaxConnections:           cfg.MaxConnections,
			ConnectionTimeoutSeconds: cfg.ConnectionTimeoutSeconds,
		}, engine, log)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Serve(cfg.Listen, cfg.WorkerPoolSize) }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-sigCh:
			log.Info().Msg("shutting down")
			if err := srv.Shutdown(); err != nil {
				return err
			}
		}
		return nil
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap DATABASE",
	Short: "Create a new database directory layout with a bootstrap admin user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbName := args[0]
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			return fmt.Errorf("bootstrap: --password is required")
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := os.Chdir(cfg.DataDir); err != nil {
			return fmt.Errorf("bootstrap: chdir %s: %w", cfg.DataDir, err)
		}

		if err := catalog.EnsureLayout(dbName); err != nil {
			return err
		}
		cat := catalog.New(dbName)
		if err := cat.Save(); err != nil {
			return err
		}

		a := acl.New()
		if err := a.AddUser(acl.BootstrapUsername, password); err != nil {
			return err
		}
		if err := a.AssignRole(acl.BootstrapUsername, acl.RoleAdmin); err != nil {
			return err
		}
		if err := a.Save(dbName); err != nil {
			return err
		}

		fmt.Printf("database %q created with bootstrap admin %q\n", dbName, acl.BootstrapUsername)
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().String("password", "", "password for the bootstrap admin user")
}
