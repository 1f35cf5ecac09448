// Package registry holds one independent monitor and binding per configured
// job kind. Monitors share no locks or timers; the backend is the only
// arbiter of which jobs run.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/jobclient"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
	"github.com/ternarybob/pipewatch/internal/view"
)

// ErrUnknownKind is returned for kinds that are not configured or disabled
var ErrUnknownKind = errors.New("unknown job kind")

// ClientFactory builds the status client of a kind
type ClientFactory func(spec models.JobKindSpec, kc common.KindConfig) interfaces.JobStatusClient

// Entry is one job kind's monitor and binding
type Entry struct {
	Spec    models.JobKindSpec
	Monitor *monitor.Monitor
	Binding *view.Binding
}

// Registry owns the monitors of every enabled kind
type Registry struct {
	entries map[models.JobKind]*Entry
	order   []models.JobKind
	logger  arbor.ILogger
}

type options struct {
	notifier      interfaces.Notifier
	scheduler     monitor.Scheduler
	clientFactory ClientFactory
	httpClient    *http.Client
}

// Option configures the registry
type Option func(*options)

// WithNotifier delivers every monitor's notices to n
func WithNotifier(n interfaces.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithScheduler shares one timer source between the monitors. Each monitor
// still arms its own independent timer.
func WithScheduler(s monitor.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithClientFactory replaces the HTTP client construction
func WithClientFactory(f ClientFactory) Option {
	return func(o *options) {
		o.clientFactory = f
	}
}

// WithHTTPClient sets the transport used by the default HTTP clients
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// New builds a monitor for every enabled kind of config
func New(config *common.Config, gate interfaces.CapabilityGate, logger arbor.ILogger, opts ...Option) (*Registry, error) {
	if gate == nil {
		return nil, fmt.Errorf("capability gate is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.clientFactory == nil {
		o.clientFactory = HTTPClientFactory(config, logger, o.httpClient)
	}

	r := &Registry{
		entries: make(map[models.JobKind]*Entry),
		logger:  logger,
	}

	pollInterval := common.ParseDurationOr(config.Monitor.PollInterval, monitor.DefaultPollInterval)
	requestTimeout := common.ParseDurationOr(config.Monitor.RequestTimeout, monitor.DefaultRequestTimeout)

	for _, kind := range config.EnabledKinds() {
		kc := config.Kinds[string(kind)]
		spec := SpecFor(kind, kc)

		monitorOpts := []monitor.Option{monitor.WithLogger(logger)}
		if o.notifier != nil {
			monitorOpts = append(monitorOpts, monitor.WithNotifier(o.notifier))
		}
		if o.scheduler != nil {
			monitorOpts = append(monitorOpts, monitor.WithScheduler(o.scheduler))
		}

		m := monitor.New(monitor.Config{
			Spec:               spec,
			StartCapability:    kc.StartCapability,
			StopCapability:     kc.StopCapability,
			PollInterval:       pollInterval,
			RequestTimeout:     requestTimeout,
			FailureNoticeAfter: config.Monitor.FailureNoticeAfter,
			Params:             kc.Params,
		}, o.clientFactory(spec, kc), gate, monitorOpts...)

		r.entries[kind] = &Entry{Spec: spec, Monitor: m, Binding: view.NewBinding(m)}
		r.order = append(r.order, kind)

		logger.Debug().
			Str("kind", string(kind)).
			Str("base_path", spec.BasePath).
			Dur("poll_interval", pollInterval).
			Msg("Job monitor registered")
	}

	logger.Info().Int("kinds", len(r.order)).Msg("Job registry initialized")
	return r, nil
}

// SpecFor merges a kind's catalog entry with its configuration
func SpecFor(kind models.JobKind, kc common.KindConfig) models.JobKindSpec {
	spec, _ := models.LookupJobKind(kind)
	spec.Kind = kind
	if kc.Title != "" {
		spec.Title = kc.Title
	}
	if kc.BasePath != "" {
		spec.BasePath = kc.BasePath
	}
	if kc.UnitLabel != "" {
		spec.UnitLabel = kc.UnitLabel
	}
	if kc.ProducedLabel != "" {
		spec.ProducedLabel = kc.ProducedLabel
	}
	spec.AllowFreshRestart = spec.AllowFreshRestart || kc.AllowFreshRestart
	return spec
}

// HTTPClientFactory builds jobclient.Client instances from the backend config
func HTTPClientFactory(config *common.Config, logger arbor.ILogger, httpClient *http.Client) ClientFactory {
	return func(spec models.JobKindSpec, kc common.KindConfig) interfaces.JobStatusClient {
		opts := []jobclient.ClientOption{
			jobclient.WithLogger(logger),
			jobclient.WithRateLimit(config.Backend.RateLimit),
			jobclient.WithFieldAliases(kc.Fields),
		}
		if httpClient != nil {
			copied := *httpClient
			opts = append(opts, jobclient.WithHTTPClient(&copied))
		}
		opts = append(opts, jobclient.WithTimeout(common.ParseDurationOr(config.Backend.Timeout, jobclient.DefaultTimeout)))

		if oc := config.Backend.OAuth2; oc.TokenURL != "" {
			opts = append(opts, jobclient.WithClientCredentials(&clientcredentials.Config{
				ClientID:     oc.ClientID,
				ClientSecret: oc.ClientSecret,
				TokenURL:     oc.TokenURL,
				Scopes:       oc.Scopes,
			}))
		} else if config.Backend.Token != "" {
			opts = append(opts, jobclient.WithBearerToken(config.Backend.Token))
		}

		return jobclient.NewClient(spec.Kind, config.Backend.BaseURL, spec.BasePath, opts...)
	}
}

// Kinds returns the registered kinds in catalog order
func (r *Registry) Kinds() []models.JobKind {
	out := make([]models.JobKind, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the entry of kind
func (r *Registry) Get(kind models.JobKind) (*Entry, error) {
	entry, ok := r.entries[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrUnknownKind)
	}
	return entry, nil
}

// Lookup resolves a kind name to its entry
func (r *Registry) Lookup(name string) (*Entry, error) {
	return r.Get(models.JobKind(name))
}

// Entries returns every entry in catalog order
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.entries[kind])
	}
	return out
}

// Views returns the current view of every kind in catalog order
func (r *Registry) Views() []monitor.View {
	out := make([]monitor.View, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.entries[kind].Monitor.View())
	}
	return out
}

// OnChange subscribes fn to every monitor's view changes
func (r *Registry) OnChange(fn func(monitor.View)) {
	for _, kind := range r.order {
		r.entries[kind].Monitor.OnChange(fn)
	}
}

// MountAll performs every monitor's initial status read concurrently. A
// failing kind does not keep the others from mounting.
func (r *Registry) MountAll(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	start := time.Now()
	for _, kind := range r.order {
		entry := r.entries[kind]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Monitor.Mount(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", entry.Spec.Kind, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	r.logger.Info().
		Int("kinds", len(r.order)).
		Int("failed", len(errs)).
		Dur("duration", time.Since(start)).
		Msg("Job monitors mounted")

	return errors.Join(errs...)
}

// Close tears every monitor down
func (r *Registry) Close() {
	for _, kind := range r.order {
		r.entries[kind].Monitor.Close()
	}
	r.logger.Debug().Msg("Job registry closed")
}
