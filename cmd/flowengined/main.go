// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/flowengine/internal/apiserver"
	"github.com/tombee/flowengine/internal/config"
	"github.com/tombee/flowengine/internal/log"
	"github.com/tombee/flowengine/internal/secrets"
	flowerrors "github.com/tombee/flowengine/pkg/errors"
	"github.com/tombee/flowengine/pkg/workflow"
	"github.com/tombee/flowengine/pkg/workflow/memstore"
	"github.com/tombee/flowengine/pkg/workflow/sqlstore"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		printCLIError(err)
		os.Exit(1)
	}
}

// printCLIError prints err the way an operator expects to read it: a
// WorkflowError's Suggestion, when it has one, is worth more than the
// bare error string cobra would otherwise print (root command has
// SilenceErrors set so this is the only place CLI errors surface).
func printCLIError(err error) {
	var uve flowerrors.UserVisibleError
	if flowerrors.As(err, &uve) && uve.IsUserVisible() {
		fmt.Fprintln(os.Stderr, "error:", uve.UserMessage())
		if s := uve.Suggestion(); s != "" {
			fmt.Fprintln(os.Stderr, "suggestion:", s)
		}
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
}

func newRootCommand() *cobra.Command {
	var listenAddr, databaseURL string

	root := &cobra.Command{
		Use:           "flowengined",
		Short:         "flowengined runs the workflow execution engine's HTTP API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&listenAddr, "listen", "", "address to bind the HTTP API server")
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "sqlite:// path, or empty for the in-memory store")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "start the API server and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(listenAddr, databaseURL)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("flowengined %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}

	root.AddCommand(serveCmd, versionCmd, newWorkflowCommand())
	root.RunE = serveCmd.RunE
	return root
}

func serve(listenAddr, databaseURL string) error {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg := config.Load()
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}

	store, err := openStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open store", log.Error(err))
		return err
	}
	defer store.Close()

	cipher, warning, err := secrets.ResolveCipher(cfg.CredentialSecretKey, cfg.CredentialBackend)
	if err != nil {
		logger.Error("failed to resolve credential cipher", log.Error(err))
		return err
	}
	if warning != "" {
		logger.Warn(warning)
	}

	provider, err := apiserver.ResolveProvider(context.Background(), store, cipher)
	if err != nil {
		logger.Error("failed to resolve LLM provider", log.Error(err))
		return err
	}

	engine := workflow.NewEngine(store, provider)
	engine.RunTimeout = cfg.RunTimeout
	engine.SetMaxConcurrentAsyncRuns(cfg.MaxConcurrentAsyncRuns)
	router := apiserver.NewRouter(engine, store, logger, cipher)
	server := apiserver.New(cfg.ListenAddr, router, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", log.String("signal", sig.String()))
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("error during shutdown", log.Error(err))
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", log.Error(err))
			return err
		}
		return nil
	}
}

// openStore selects the Store backend by databaseURL's scheme: empty or
// "memory://" gets the in-memory store, "sqlite://" (or a bare path)
// gets the SQLite-backed store.
func openStore(databaseURL string) (workflow.Store, error) {
	switch {
	case databaseURL == "" || databaseURL == "memory://":
		return memstore.New(), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		return sqlstore.New(sqlstore.Config{Path: path, WAL: true})
	default:
		return sqlstore.New(sqlstore.Config{Path: databaseURL, WAL: true})
	}
}
