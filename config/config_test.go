package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "console", cfg.Log.Format)
	require.Equal(t, []string{"com.flipchat.iap.premium", "com.flipchat.iap.stickers"}, cfg.IAP.ProductIDs)
	require.Equal(t, 5*time.Minute, cfg.IAP.CatalogTTL)
	require.Equal(t, 16, cfg.IAP.StreamBufferSize)
	require.Equal(t, time.Second, cfg.IAP.NotifyTimeout)
	require.False(t, cfg.IAP.PublishOnChangeOnly)
	require.False(t, cfg.Android.Enabled())
	require.False(t, cfg.Push.Enabled)

	require.Len(t, cfg.IAP.Options(), 2)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("IAP_PRODUCT_IDS", "a,b,c")
	t.Setenv("IAP_CATALOG_TTL", "30s")
	t.Setenv("IAP_PUBLISH_ON_CHANGE_ONLY", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, []string{"a", "b", "c"}, cfg.IAP.ProductIDs)
	require.Equal(t, 30*time.Second, cfg.IAP.CatalogTTL)
	require.True(t, cfg.IAP.PublishOnChangeOnly)
	require.Len(t, cfg.IAP.Options(), 3)
}

func TestLoad_DotEnv(t *testing.T) {
	// Overload writes into the process environment, so register the keys with
	// t.Setenv first to have them restored afterwards.
	t.Setenv("ANDROID_PACKAGE_NAME", "")
	t.Setenv("ANDROID_CREDENTIALS_PATH", "")
	t.Setenv("PUSH_ENABLED", "")

	dir := t.TempDir()
	env := "ANDROID_PACKAGE_NAME=xyz.flipchat.app\nANDROID_CREDENTIALS_PATH=/tmp/play.json\nPUSH_ENABLED=true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, "xyz.flipchat.app", cfg.Android.PackageName)
	require.True(t, cfg.Android.Enabled())
	require.True(t, cfg.Push.Enabled)
}
