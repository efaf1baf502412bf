package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/code-payments/flipchat-iapkit/config"
	"github.com/code-payments/flipchat-iapkit/event"
	"github.com/code-payments/flipchat-iapkit/iap"
	"github.com/code-payments/flipchat-iapkit/iap/android"
	"github.com/code-payments/flipchat-iapkit/iap/cache"
	"github.com/code-payments/flipchat-iapkit/iap/memory"
	"github.com/code-payments/flipchat-iapkit/push"
)

var demoPrice = decimal.RequireFromString("0.99")

// app is the reconciler together with the platform it runs against.
type app struct {
	platform   *memory.Platform
	reconciler *iap.Reconciler

	// closers release what the reconciler was wired with, once it is closed.
	closers []func()
}

func (a *app) Close() {
	a.reconciler.Close()
	for _, closer := range a.closers {
		closer()
	}
}

// newApp wires the reconciler for a command. playTokens, if any, are looked
// up on Google Play instead of using the in-memory platform's snapshot.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, playTokens android.StaticTokens) (*app, error) {
	platform := memory.NewPlatform(demoProducts(cfg.IAP.ProductIDs)...)

	opts := cfg.IAP.Options()
	var closers []func()

	if cfg.Android.Enabled() {
		credentials, err := os.ReadFile(cfg.Android.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read android credentials: %w", err)
		}

		play, err := android.NewPlayClient(ctx, log.Named("play"), credentials, cfg.Android.PackageName, playTokens)
		if err != nil {
			return nil, err
		}

		var catalog iap.Catalog = play
		if cfg.IAP.CatalogTTL > 0 {
			cached := cache.NewInCache(play, cfg.IAP.CatalogTTL)
			closers = append(closers, cached.Close)
			catalog = cached
		}
		opts = append(opts, iap.WithCatalog(catalog))

		if len(playTokens) > 0 {
			opts = append(opts, iap.WithSnapshotSource(play))
		}
	} else if len(playTokens) > 0 {
		return nil, errors.New("play tokens require ANDROID_PACKAGE_NAME and ANDROID_CREDENTIALS_PATH")
	}

	if cfg.Push.Enabled {
		pusher, err := newPusher(ctx, cfg.Push, log.Named("push"))
		if err != nil {
			return nil, err
		}

		bus := event.NewBus[string, *iap.EntitlementEvent]()
		bus.AddHandler(push.NewEntitlementNotifier(log.Named("notifier"), cfg.Push.UserID, pusher))
		opts = append(opts, iap.WithEventBus(bus))
	}

	return &app{
		platform:   platform,
		reconciler: iap.NewReconciler(log.Named("reconciler"), platform, cfg.IAP.ProductIDs, opts...),
		closers:    closers,
	}, nil
}

func newPusher(ctx context.Context, cfg push.Config, log *zap.Logger) (push.Pusher, error) {
	if cfg.CredentialsPath == "" {
		log.Info("No firebase credentials configured, pushes are dropped")
		return &push.NoOpPusher{}, nil
	}

	fb, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	client, err := fb.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase messaging client: %w", err)
	}

	tokens := push.NewMemory()
	for i, token := range cfg.Tokens {
		if err := tokens.AddToken(ctx, cfg.UserID, fmt.Sprintf("device%d", i), push.TokenTypeFCMApns, token); err != nil {
			return nil, err
		}
	}

	return push.NewFCMPusher(log, tokens, client), nil
}

func demoProducts(ids []string) []iap.Product {
	products := make([]iap.Product, 0, len(ids))
	for _, id := range ids {
		products = append(products, iap.Product{
			ID:           id,
			DisplayName:  id[strings.LastIndex(id, ".")+1:],
			Price:        demoPrice,
			CurrencyCode: "USD",
			Type:         iap.ProductTypeNonConsumable,
		})
	}
	return products
}
