// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package observability

import (
	"go.uber.org/zap"

	"github.com/gogama/httpflow"
	"github.com/gogama/httpflow/request"
)

// A Logger is an event handler writing one structured record per
// event to a zap logger.
//
// Execution starts are logged at debug level, timeouts and failures at
// warn level, and successful ends at info level.
type Logger struct {
	logger *zap.Logger
}

// NewLogger returns a logging handler. A nil logger discards
// everything.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("httpflow")}
}

// Handle logs evt.
func (l *Logger) Handle(evt httpflow.Event, e *request.Execution) {
	fields := []zap.Field{
		zap.Stringer("id", e.ID),
		zap.String("method", e.Method),
		zap.String("uri", e.URI),
		zap.Bool("async", e.Async),
	}
	switch evt {
	case httpflow.BeforeExecutionStart:
		l.logger.Debug("execution starting", append(fields, zap.Duration("timeout", e.Timeout))...)
	case httpflow.AfterTimeout:
		l.logger.Warn("execution timed out", append(fields, zap.Duration("timeout", e.Timeout))...)
	case httpflow.AfterExecutionEnd:
		fields = append(fields, zap.Duration("duration", e.Duration()))
		if e.Err != nil {
			l.logger.Warn("execution failed", append(fields, zap.Error(e.Err))...)
			return
		}
		l.logger.Info("execution succeeded", append(fields, zap.Int("status", e.StatusCode()))...)
	}
}
