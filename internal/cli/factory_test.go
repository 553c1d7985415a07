package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/mintline/internal/config"
	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/internal/presentation/tui"
	"github.com/aretw0/mintline/pkg/adapters/memory"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Signer.Mode = config.SignerMemory
	cfg.Store.Driver = config.DriverMemory
	cfg.Poll.Interval = 10 * time.Millisecond
	cfg.Poll.Timeout = 5 * time.Second
	return cfg
}

func build(t *testing.T, cfg config.Config) (*App, *bytes.Buffer) {
	t.Helper()
	var stderr bytes.Buffer
	app, err := Build(context.Background(), cfg, IO{In: &bytes.Buffer{}, Out: &bytes.Buffer{}, Err: &stderr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, &stderr
}

func TestBuild_Simulated(t *testing.T) {
	app, stderr := build(t, testConfig(t))

	assert.NoError(t, app.Ready(context.Background()))
	assert.Contains(t, stderr.String(), "simulated issuance backend")

	families, err := app.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBuild_FileStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverFile
	cfg.Store.Dir = t.TempDir()
	app, _ := build(t, cfg)

	ctx := context.Background()
	state, err := app.Service.Start(ctx, domain.IssuanceRequest{
		Creator:     "GCREATOR",
		AssetCode:   "FILE",
		DisplayName: "File",
		TotalSupply: "10",
		FeeBps:      500,
	})
	require.NoError(t, err)

	ids, err := app.Service.Store().List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, state.ID)
}

func TestBuild_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Store.Redis.Addr = mr.Addr()
	cfg.Store.Redis.Prefix = "test:"
	app, _ := build(t, cfg)

	assert.NoError(t, app.Ready(context.Background()))

	mr.Close()
	assert.Error(t, app.Ready(context.Background()))
}

func TestBuild_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Store.Redis.Addr = addr

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Build(ctx, cfg, IO{Err: &bytes.Buffer{}})
	assert.ErrorContains(t, err, "unreachable")
}

func TestBuild_BadLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Level = "loud"
	_, err := Build(context.Background(), cfg, IO{Err: &bytes.Buffer{}})
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	logger := logging.NewNop()

	t.Run("eventually reachable", func(t *testing.T) {
		calls := 0
		err := Connect(context.Background(), logger, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := Connect(context.Background(), logger, func(context.Context) error {
			calls++
			return errors.New("connection refused")
		})
		assert.EqualError(t, err, "connection refused")
		assert.Equal(t, ConnectAttempts, calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := Connect(ctx, logger, func(context.Context) error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})
}

func TestBuild_EncryptedStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverFile
	cfg.Store.Dir = t.TempDir()
	cfg.Store.EncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	app, _ := build(t, cfg)
	ctx := context.Background()

	state := domain.NewWorkflowState("wf-sealed")
	state.Stage = domain.StageError
	state.FailedStage = domain.StageSubmitting
	state.SignedPayload = memory.SignedPrefix + "emission"
	require.NoError(t, app.Service.Store().Save(ctx, state.ID, state))

	raw, err := os.ReadFile(filepath.Join(cfg.Store.Dir, state.ID+".json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "enc:v1:")
	assert.NotContains(t, string(raw), memory.SignedPrefix)

	loaded, err := app.Service.Store().Load(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.SignedPrefix+"emission", loaded.SignedPayload)
}

func TestBuild_CommandSigner(t *testing.T) {
	cfg := testConfig(t)
	cfg.Signer.Mode = config.SignerCommand
	cfg.Signer.Command = "/nonexistent/mintline-signer"
	app, _ := build(t, cfg)

	state, err := Issue(context.Background(), app.Service, tui.NewPrinter(&bytes.Buffer{}), IssueOptions{
		Request:       request("TOOL"),
		WatchInterval: 5 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrWorkflowFailed)
	assert.Equal(t, domain.StageError, state.Stage)
	assert.Equal(t, domain.StageReadyToSign, state.FailedStage)
	assert.Equal(t, domain.KindUserDeclined, state.ErrorKind)
}
