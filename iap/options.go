package iap

import (
	"time"

	"github.com/code-payments/flipchat-iapkit/event"
)

type Option func(*Options)

type Options struct {
	Catalog       Catalog
	Snapshots     SnapshotSource
	EventBus      *event.Bus[string, *EntitlementEvent]
	OnChangeOnly  bool
	BufferSize    int
	NotifyTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		BufferSize:    event.DefaultBufferSize,
		NotifyTimeout: event.DefaultNotifyTimeout,
	}
}

func ApplyOptions(options ...Option) Options {
	applied := DefaultOptions()
	for _, option := range options {
		option(&applied)
	}
	return applied
}

// WithCatalog serves products from c instead of the platform.
func WithCatalog(c Catalog) Option {
	return func(o *Options) {
		o.Catalog = c
	}
}

// WithSnapshotSource resyncs from s instead of the platform.
func WithSnapshotSource(s SnapshotSource) Option {
	return func(o *Options) {
		o.Snapshots = s
	}
}

// WithEventBus emits an EntitlementEvent for every grant and revocation.
func WithEventBus(bus *event.Bus[string, *EntitlementEvent]) Option {
	return func(o *Options) {
		o.EventBus = bus
	}
}

// WithPublishOnChangeOnly suppresses live feed publishes that leave the set
// unchanged.
func WithPublishOnChangeOnly() Option {
	return func(o *Options) {
		o.OnChangeOnly = true
	}
}

func WithStreamBufferSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.BufferSize = size
		}
	}
}

func WithNotifyTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.NotifyTimeout = timeout
		}
	}
}
