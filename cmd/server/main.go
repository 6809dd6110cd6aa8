// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Command server runs the security-key enrollment service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyward/go-fido-enroll/internal/config"
	"github.com/keyward/go-fido-enroll/internal/server"
	"github.com/keyward/go-fido-enroll/pkg/logging"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "enroll-server",
	Short: "FIDO2 security-key enrollment server",
	Long: `enroll-server exposes the security-key registration ceremony over
HTTP: creation options out, attestation responses in, credentials
persisted. Relying-party identity, storage and tokens are configured
via file or FIDO_ENROLL_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("enroll-server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default is /etc/fido-enroll/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func run() error {
	logger := logging.DefaultLogger()

	path := configPath
	if path == "" {
		if envPath := os.Getenv("FIDO_ENROLL_CONFIG"); envPath != "" {
			path = envPath
		} else {
			path = "/etc/fido-enroll/config.yaml"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.Info("configuration loaded",
		"config", path,
		"rp_id", cfg.Enroll.RPID,
		"listen", cfg.Server.Listen,
		"version", version)

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.DefaultLogger().Error(err)
		os.Exit(1)
	}
}
