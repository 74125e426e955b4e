// Package o11y wires the o11y provider used by the esmem binaries and test helpers.
package o11y

import (
	"context"
	"io"
	"os"

	"github.com/DataDog/datadog-go/statsd"

	"github.com/esmem/esmem/config/secret"
	"github.com/esmem/esmem/o11y"
	"github.com/esmem/esmem/o11y/honeycomb"
)

type Config struct {
	Statsd           string
	HoneycombEnabled bool
	HoneycombDataset string
	HoneycombKey     secret.String
	Format           string
	Version          string
	Service          string
	StatsNamespace   string

	// Optional
	Mode                    string
	Debug                   bool
	StatsdTelemetryDisabled bool
	Writer                  io.Writer
}

// Setup is the primary entrypoint to initialise the o11y system.
// The returned func must be called to flush any buffered events.
func Setup(ctx context.Context, o Config) (context.Context, func(context.Context), error) {
	honeyConfig := honeycomb.Config{
		Dataset:     o.HoneycombDataset,
		Key:         o.HoneycombKey.Raw(),
		Format:      o.Format,
		SendTraces:  o.HoneycombEnabled,
		Writer:      o.Writer,
		ServiceName: o.Service,
		Debug:       o.Debug,
	}
	err := honeyConfig.Validate()
	if err != nil {
		return nil, nil, err
	}

	metrics, err := newMetrics(o)
	if err != nil {
		return nil, nil, err
	}
	honeyConfig.Metrics = metrics

	provider := honeycomb.New(honeyConfig)
	provider.AddGlobalField("service", o.Service)
	provider.AddGlobalField("version", o.Version)
	if o.Mode != "" {
		provider.AddGlobalField("mode", o.Mode)
	}

	return o11y.WithProvider(ctx, provider), provider.Close, nil
}

func newMetrics(o Config) (o11y.ClosableMetricsProvider, error) {
	if o.Statsd == "" {
		return &statsd.NoOpClient{}, nil
	}

	hostname, _ := os.Hostname()
	tags := []string{
		"service:" + o.Service,
		"version:" + o.Version,
		"hostname:" + hostname,
	}
	if o.Mode != "" {
		tags = append(tags, "mode:"+o.Mode)
	}

	statsdOpts := []statsd.Option{
		statsd.WithNamespace(o.StatsNamespace),
		statsd.WithTags(tags),
	}
	if o.StatsdTelemetryDisabled {
		statsdOpts = append(statsdOpts, statsd.WithoutTelemetry())
	}

	return statsd.New(o.Statsd, statsdOpts...)
}
