package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	v, err := NewViper("")
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), s)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PINCHCHAT_STORE_DRIVER", "memory")
	t.Setenv("PINCHCHAT_REDIS_ENABLED", "true")
	t.Setenv("PINCHCHAT_PROVISION_RELOAD_DELAY", "250ms")
	t.Setenv("PORT", "8080")

	v, err := NewViper("")
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "memory", s.Store.Driver)
	require.True(t, s.Redis.Enabled)
	require.Equal(t, 250*time.Millisecond, s.Provision.ReloadDelay)
	require.Equal(t, 8080, s.Server.Port)
}

func TestLoad_ConfigFileRoundTrip(t *testing.T) {
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "pinchchat.yaml")
	want := DefaultSettings()
	want.Server.Port = 4200
	want.Store.Driver = "memory"
	want.Log.Format = "json"
	want.Locale = "fr"
	want.Server.ShutdownTimeout = 3 * time.Second
	require.NoError(t, WriteYAML(path, want))

	v, err := NewViper(path)
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, want, s)
}

func TestNewViper_MissingFileFails(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := DefaultSettings()
	s.Store.Driver = "postgres"
	require.Error(t, s.Validate())

	s = DefaultSettings()
	s.Store.Path = " "
	require.Error(t, s.Validate())

	s = DefaultSettings()
	s.Server.Port = 0
	require.Error(t, s.Validate())
}

func TestOpenStore_MemoryAndSQLite(t *testing.T) {
	ctx := context.Background()
	for _, st := range []StoreSettings{
		{Driver: "memory", MaxSessions: 10},
		{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "cache.db")},
	} {
		store, err := st.OpenStore(ctx)
		require.NoError(t, err, st.Driver)
		require.NoError(t, store.Save(ctx, "s", []history.Message{{ID: "a", Role: history.RoleUser}}))
		got, err := store.Load(ctx, "s")
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.NoError(t, store.Close())
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := StoreSettings{Driver: "nope"}.OpenStore(context.Background())
	require.Error(t, err)
}

func TestWriteYAML_FailsOnMissingDir(t *testing.T) {
	err := WriteYAML(filepath.Join(t.TempDir(), "no", "such", "dir.yaml"), DefaultSettings())
	require.Error(t, err)
}
