package main

import (
	"log/slog"
	"sync"

	"github.com/Unleash/unleash-client-go/v3"
)

// BasicListener is a much less noisy version of Unleash's DebugListener
type BasicListener struct {
	logger *slog.Logger
	ready  chan struct{}
	once   sync.Once
}

func newBasicListener(logger *slog.Logger) *BasicListener {
	return &BasicListener{logger: logger, ready: make(chan struct{})}
}

// Ready is closed once the feature toggles have been fetched for the first time
func (l *BasicListener) Ready() <-chan struct{} {
	return l.ready
}

// OnError logs errors
func (l *BasicListener) OnError(err error) {
	l.logger.Error("Unleash error", "error", err)
}

// OnWarning logs warnings at debug, they're mostly noise
func (l *BasicListener) OnWarning(warning error) {
	l.logger.Debug("Unleash warning", "warning", warning)
}

// OnReady logs when the repository is ready
func (l *BasicListener) OnReady() {
	l.once.Do(func() {
		l.logger.Info("Unleash ready")
		close(l.ready)
	})
}

// OnCount is called when a feature is queried
func (l *BasicListener) OnCount(name string, enabled bool) {
}

// OnSent is called when the client has uploaded metrics
func (l *BasicListener) OnSent(payload unleash.MetricsData) {
}

// OnRegistered is called when the client has registered
func (l *BasicListener) OnRegistered(payload unleash.ClientData) {
}
