// Package telemetry wires Sentry error reporting into the errors package.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/fragring/internal/conf"
	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/logger"
)

var sentryInitialized atomic.Bool

// Init initializes Sentry and installs the errors reporter. Disabled settings
// leave reporting off and return nil.
func Init(settings *conf.TelemetrySettings, version string) error {
	if settings == nil || !settings.Enabled {
		GetLogger().Debug("error telemetry disabled")
		return nil
	}

	return initWithOptions(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       settings.SampleRate,
		AttachStacktrace: false,
		Environment:      settings.Environment,
		ServerName:       "", // prevent hostname leakage
		Release:          fmt.Sprintf("fragring@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
}

func initWithOptions(opts sentry.ClientOptions) error {
	if err := sentry.Init(opts); err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	sentryInitialized.Store(true)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	GetLogger().Info("error telemetry enabled", logger.String("environment", opts.Environment))
	return nil
}

// IsInitialized reports whether Init enabled Sentry.
func IsInitialized() bool {
	return sentryInitialized.Load()
}

// Shutdown flushes pending events and detaches the reporter.
func Shutdown(timeout time.Duration) {
	if !sentryInitialized.Swap(false) {
		return
	}
	errors.SetTelemetryReporter(nil)
	if !sentry.Flush(timeout) {
		GetLogger().Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
}

// applyPrivacyFilters strips host and user identifying data from an event
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
