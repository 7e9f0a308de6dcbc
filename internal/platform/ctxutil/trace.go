package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
	// EventID is the webhook event being handled, empty outside event dispatch.
	EventID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// WithEventID returns a context whose trace data carries eventID, copying any
// trace/request ids already present.
func WithEventID(ctx context.Context, eventID string) context.Context {
	next := &TraceData{EventID: eventID}
	if td := GetTraceData(ctx); td != nil {
		next.TraceID = td.TraceID
		next.RequestID = td.RequestID
	}
	return WithTraceData(ctx, next)
}

// LogFields flattens trace data into logger key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	out := make([]interface{}, 0, 6)
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	if td.EventID != "" {
		out = append(out, "event_id", td.EventID)
	}
	return out
}
