package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/menuboard/menuboard/pkg/contextkeys"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Log formats accepted by NewLogger
const (
	FormatJSON = "json"
	FormatText = "text"
)

// NewLogger builds a logrus logger for the given level and format
func NewLogger(level, format string, output io.Writer) (*logrus.Logger, error) {
	if output == nil {
		output = os.Stdout
	}

	lvl := logrus.InfoLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	log := logrus.New()
	log.SetOutput(output)
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", FormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{})
	case FormatText:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return log, nil
}

// FromContext returns an entry derived from base carrying the request ID
// and trace context
func FromContext(ctx context.Context, base *logrus.Logger) *logrus.Entry {
	if base == nil {
		base = logrus.StandardLogger()
	}

	entry := logrus.NewEntry(base)
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	return WithTraceContext(ctx, entry)
}

// WithTraceContext adds the trace and span IDs of the active span, if any
func WithTraceContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return entry
	}
	return entry.WithFields(logrus.Fields{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
