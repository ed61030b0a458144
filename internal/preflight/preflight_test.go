package preflight

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"relay/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	require.True(t, result.Passed, result.Detail)
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	require.False(t, result.Passed)
	require.NotEmpty(t, result.Detail)
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	require.False(t, CheckDirectoryAccess("test", f).Passed)
}

func TestCheckBindsDistinct(t *testing.T) {
	require.True(t, CheckBindsDistinct("127.0.0.1:8090", "").Passed, "disabled socket passes")
	require.False(t, CheckBindsDistinct("127.0.0.1:8090", "127.0.0.1:8090").Passed, "identical binds fail")
	require.True(t, CheckBindsDistinct("127.0.0.1:8090", "127.0.0.1:8091").Passed, "distinct ports pass")
}

func TestCheckBindAvailable_InUse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	require.False(t, CheckBindAvailable(context.Background(), "test", listener.Addr().String()).Passed)
	require.True(t, CheckBindAvailable(context.Background(), "test", "127.0.0.1:0").Passed)
}

func TestCheckDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckDaemon(context.Background(), srv.URL)
	require.True(t, result.Passed, result.Detail)
	require.False(t, CheckDaemon(context.Background(), "").Passed, "empty bind fails")
}

func TestCheckDaemon_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	require.False(t, CheckDaemon(context.Background(), addr).Passed)
}

func TestRunAll_NilConfig(t *testing.T) {
	require.Nil(t, RunAll(context.Background(), nil))
}

func TestRunAll_MinimalConfig(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Broker.HTTPBind = "127.0.0.1:0"
	cfg.Broker.SocketBind = "127.0.0.1:0"
	require.NoError(t, cfg.EnsureDirectories())

	results := RunAll(context.Background(), &cfg)
	require.Len(t, results, 5)
	require.Empty(t, Failures(results))

	cfg.Broker.SocketBind = ""
	require.Len(t, RunAll(context.Background(), &cfg), 4, "socket check skipped")
}

func TestRunAll_MissingDirectories(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.LogDir = cfg.Paths.DataDir
	cfg.Broker.HTTPBind = "127.0.0.1:0"
	cfg.Broker.SocketBind = ""

	require.Len(t, Failures(RunAll(context.Background(), &cfg)), 2, "both directory checks fail")
}
