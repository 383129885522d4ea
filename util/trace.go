package util

import (
	"time"

	"go.uber.org/zap"
)

// Trace logs how long a stage took. Use as `defer util.Trace("decode")()`.
func Trace(name string, fields ...zap.Field) func() {
	start := time.Now()
	return func() {
		Logger.Debug(name, append(fields, zap.Duration("cost", time.Since(start)))...)
	}
}
