// SPDX-License-Identifier: MIT
package transport

import (
	applog "passthru/internal/log"

	"github.com/sirupsen/logrus"
)

// LoggingTransport writes frames to the debug log.
type LoggingTransport struct {
	log *logrus.Entry
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{log: applog.Component("telemetry")}
}

// Send logs the frame at debug level. It never fails.
func (lt *LoggingTransport) Send(f Frame) error {
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}
	lt.log.WithFields(logrus.Fields{
		"seq":        f.Seq,
		"state":      f.State,
		"level":      f.Level,
		"gate":       f.Gate,
		"latency_ms": f.LatencyMs,
	}).Debug("frame")
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
