package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one yt-dlp invocation or other unit of work within a request.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	now    func() time.Time
}

// StartSpan derives a child span from ctx. The trace id reuses the request id
// when one is present so a request's spans can be grepped together.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	if TraceIDFromContext(ctx) == "" {
		traceID := RequestIDFromContext(ctx)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx = withString(ctx, traceIDKey, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	parentSpanID := SpanIDFromContext(ctx)
	spanID := uuid.NewString()

	logger = logger.With(
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parentSpanID != "" {
		logger = logger.With(slog.String("parent_span_id", parentSpanID))
	}

	ctx = WithLogger(ctx, logger)
	ctx = withString(ctx, spanIDKey, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now(), now: time.Now}
}

// End emits a completion entry. A non-nil err is logged at warn level so
// failing extractions stand out from the steady stream of successes.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	elapsed := s.now().Sub(s.start)
	if err != nil {
		s.logger.Warn("span failed", slog.Duration("duration", elapsed), slog.String("error", err.Error()))
		return
	}
	s.logger.Info("span completed", slog.Duration("duration", elapsed))
}
