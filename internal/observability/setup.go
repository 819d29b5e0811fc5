package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/EricDistort/QuberX/internal/config"
	"github.com/EricDistort/QuberX/internal/infrastructure/observability"
)

// Setup configures logging, metrics and tracing for the service. When
// cfg.MetricsAddr is set, metrics are also served on a separate listener.
// The returned func flushes traces and stops that listener.
func Setup(ctx context.Context, serviceName string, cfg *config.Config) (func(context.Context) error, error) {
	observability.InitLogger(cfg.LogLevel)

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = observability.InitMetrics(cfg.MetricsAddr)
	} else {
		observability.RegisterMetrics()
	}

	tracerShutdown, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		if metricsSrv != nil {
			metricsSrv.Close()
		}
		return nil, err
	}

	return func(ctx context.Context) error {
		var errs []error
		if metricsSrv != nil {
			errs = append(errs, metricsSrv.Shutdown(ctx))
		}
		errs = append(errs, tracerShutdown(ctx))
		return errors.Join(errs...)
	}, nil
}
