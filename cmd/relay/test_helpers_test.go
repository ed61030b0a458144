package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"relay/internal/broker"
	"relay/internal/config"
	"relay/internal/daemon"
	"relay/internal/history"
	"relay/internal/logging"
	"relay/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	configPath string
	httpAddr   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithoutSocket())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	hub := logging.NewStreamHub(cfg.Broker.LogCapacity)
	logger := slog.New(logging.NewStreamHandler(hub, slog.LevelDebug))

	store := testsupport.MustOpenHistory(t, cfg)
	recorder := history.NewRecorder(store, cfg.History.BufferSize, logger)
	t.Cleanup(recorder.Close)

	b := broker.New(broker.Options{
		RequestTimeout:    cfg.RequestTimeout(),
		MaxRequestTimeout: cfg.MaxRequestTimeout(),
		LivenessThreshold: cfg.LivenessThreshold(),
		LogCapacity:       cfg.Broker.LogCapacity,
		Logger:            logger,
		LogHub:            hub,
		History:           recorder,
	})
	d, err := daemon.New(cfg, b, store, logger, daemon.WithHistoryRecorder(recorder))
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		configPath: configPath,
		httpAddr:   d.HTTPAddr(),
	}
}

func runCLI(t *testing.T, args []string, httpAddr, configPath string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args, httpAddr, configPath)
}

func runCLIContext(t *testing.T, ctx context.Context, args []string, httpAddr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if httpAddr != "" {
		flags = append(flags, "--http", httpAddr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
