package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"tracechain/internal/blob"
	"tracechain/internal/config"
	"tracechain/internal/core"
	"tracechain/internal/events"
	"tracechain/pkg/domain"
)

// ledgerEnv holds the service and the adapters built around it.
type ledgerEnv struct {
	Service *core.Service
	Bus     *events.Bus
	Ring    *events.Ring
	Metrics http.Handler
	Tracer  *core.JSONTraceTracer

	closers []func() error
}

// Close releases the store and other resources in reverse order.
func (e *ledgerEnv) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func storageConfig(c *config.Config) core.StorageConfig {
	return core.StorageConfig{
		Driver:      c.Store.Driver,
		SQLitePath:  c.Store.SQLitePath,
		PostgresDSN: c.Store.PostgresDSN,
	}
}

func blobConfig(c *config.Config) blob.Config {
	return blob.Config{
		Driver: c.Blob.Driver,
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}

// initLedger wires the configured store, archive, metrics backend, tracer
// and event bus into a Service.
func initLedger(ctx context.Context, c *config.Config) (*ledgerEnv, error) {
	log := zap.L()
	env := &ledgerEnv{
		Bus:  events.NewBus(),
		Ring: events.NewRing(c.Server.EventBuffer),
	}
	env.Bus.Subscribe(env.Ring.Handle)
	env.Bus.Subscribe(func(_ context.Context, e domain.Event) {
		log.Debug("ledger event", zap.String("type", string(e.Type)), zap.String("lot", e.Lot), zap.String("id", e.ID))
	})

	store, closeStore, err := core.OpenPersistentStore(ctx, storageConfig(c), core.NewDefaultRulesEngine(), nil)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closeStore)

	archive, err := blob.Open(ctx, blobConfig(c))
	if err != nil {
		_ = env.Close()
		return nil, eris.Wrap(err, "open passport archive")
	}

	tokens, err := core.NewTokenGenerator(c.Ledger.TokenMode, c.Ledger.TokenDomain)
	if err != nil {
		_ = env.Close()
		return nil, eris.Wrap(err, "token generator")
	}

	opts := []core.ServiceOption{
		core.WithOwner(c.Ledger.Owner),
		core.WithLogger(core.NewZapLogger(log)),
		core.WithEventSink(env.Bus),
		core.WithTokenGenerator(tokens),
		core.WithBlobStore(archive),
	}

	switch c.Metrics.Backend {
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := core.NewPrometheusRecorder(reg)
		if err != nil {
			_ = env.Close()
			return nil, eris.Wrap(err, "register metrics")
		}
		opts = append(opts, core.WithMetricsRecorder(rec), core.WithAuditRecorder(rec))
		env.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	case "expvar":
		rec := core.NewExpvarMetricsRecorder("")
		opts = append(opts, core.WithMetricsRecorder(rec), core.WithAuditRecorder(rec))
		env.Metrics = expvar.Handler()
	}

	if c.Trace.Path != "" {
		f, err := os.OpenFile(c.Trace.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			_ = env.Close()
			return nil, eris.Wrapf(err, "open trace file %s", c.Trace.Path)
		}
		env.closers = append(env.closers, f.Close)
		env.Tracer = core.NewJSONTracer(f)
		opts = append(opts, core.WithTracer(env.Tracer))
	}

	env.Service = core.NewService(store, opts...)
	log.Info("ledger ready",
		zap.String("store", c.Store.Driver),
		zap.String("blob", c.Blob.Driver),
		zap.String("metrics", c.Metrics.Backend),
		zap.String("owner", c.Ledger.Owner),
	)
	return env, nil
}
