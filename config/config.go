package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/code-payments/flipchat-iapkit/iap"
	"github.com/code-payments/flipchat-iapkit/iap/android"
	"github.com/code-payments/flipchat-iapkit/logger"
	"github.com/code-payments/flipchat-iapkit/push"
)

// Config holds all configuration for iapctl.
type Config struct {
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// IAP holds configuration for the entitlement reconciler.
	IAP IAPConfig `mapstructure:"iap"`
	// Android holds configuration for the Google Play catalog.
	Android android.Config `mapstructure:"android"`
	// Push holds configuration for entitlement pushes.
	Push push.Config `mapstructure:"push"`
}

type IAPConfig struct {
	// ProductIDs is the comma separated catalog fetched by default.
	ProductIDs []string `mapstructure:"product_ids" default:"com.flipchat.iap.premium,com.flipchat.iap.stickers"`
	// CatalogTTL is how long fetched products are cached. Zero disables the
	// cache.
	CatalogTTL time.Duration `mapstructure:"catalog_ttl" default:"5m"`
	// StreamBufferSize is the per subscriber buffer of observable streams.
	StreamBufferSize int `mapstructure:"stream_buffer_size" default:"16"`
	// NotifyTimeout is how long a full subscriber buffer may block a publish
	// before the subscriber is dropped.
	NotifyTimeout time.Duration `mapstructure:"notify_timeout" default:"1s"`
	// PublishOnChangeOnly suppresses feed publishes that leave the set as is.
	PublishOnChangeOnly bool `mapstructure:"publish_on_change_only" default:"false"`
}

// Options returns the reconciler options the configuration describes.
func (c IAPConfig) Options() []iap.Option {
	opts := []iap.Option{
		iap.WithStreamBufferSize(c.StreamBufferSize),
		iap.WithNotifyTimeout(c.NotifyTimeout),
	}
	if c.PublishOnChangeOnly {
		opts = append(opts, iap.WithPublishOnChangeOnly())
	}
	return opts
}

// Load loads configuration from environment variables and a .env file in
// dir, if one exists. Environment variables map onto nested keys, e.g.
// IAP_CATALOG_TTL sets iap.catalog_ttl.
func Load(dir string) (*Config, error) {
	// A missing .env is normal outside of local development.
	_ = godotenv.Overload(filepath.Join(dir, ".env"))

	v := viper.New()
	bindValues(v, Config{}, "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues registers every mapstructure key with its default tag value, so
// that AutomaticEnv picks up the matching environment variable.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
