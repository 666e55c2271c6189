// Package logger builds *slog.Logger instances with functional options and
// provides attribute helpers so that workers log with consistent keys.
//
// New selects slog.NewTextHandler or slog.NewJSONHandler based on the
// configured Format, attaches static attributes, and wraps the result with
// LogHandlerDecorator, which runs registered ContextExtractor callbacks on
// every record.
//
// # Usage
//
//	import "github.com/dmitrymomot/mpsc/pkg/logger"
//
//	log := logger.New(
//	    logger.WithDevelopment("ingest"),
//	    logger.WithComponent("audit-writer"),
//	)
//	log.Info("worker stopped",
//	    logger.WorkerName("audit"),
//	    logger.Count(128),
//	)
//
// # Configuration
//
//   - WithDevelopment / WithStaging / WithProduction / WithEnvironment – presets per environment.
//   - WithFormat / WithTextFormatter / WithJSONFormatter – output format.
//   - WithLevel, WithOutput, WithHandlerOptions – handler tuning.
//   - WithAttr / WithComponent – static attributes.
//   - WithContextExtractors / WithContextValue – attributes pulled from context.
//   - WithConfig – all of the above from a Config loaded with config.Load.
//
// Error and Errors return an empty attribute for nil errors, so
//
//	log.Info("shutdown finished", logger.Error(err))
//
// needs no nil check.
package logger
