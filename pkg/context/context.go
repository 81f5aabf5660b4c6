package context

import "context"

type ContextKey string

var (
	RequestIDKey    = ContextKey("X-Request-Id")
	MethodKey       = ContextKey("X-Method")
	RouteKey        = ContextKey("X-Route")
	RemoteIPKey     = ContextKey("X-Remote-Ip")
	UserIDKey       = ContextKey("X-User-Id")
	TickIDKey       = ContextKey("X-Tick-Id")
	SubmissionIDKey = ContextKey("X-Submission-Id")
)

var logKeys = []struct {
	key   ContextKey
	field string
}{
	{RequestIDKey, "request_id"},
	{MethodKey, "method"},
	{RouteKey, "route"},
	{RemoteIPKey, "remote_ip"},
	{UserIDKey, "user_id"},
	{TickIDKey, "tick_id"},
	{SubmissionIDKey, "submission_id"},
}

// LogFields returns the ids set on ctx keyed by their log field names. Unset ids are left out.
func LogFields(ctx context.Context) map[string]any {
	fields := make(map[string]any)
	for _, k := range logKeys {
		if value := get(ctx, k.key); value != "" {
			fields[k.field] = value
		}
	}
	return fields
}

func set(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return set(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return set(ctx, MethodKey, method)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return set(ctx, RouteKey, route)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return set(ctx, RemoteIPKey, remoteIP)
}

// SetUserID stores the authenticated operator. Manual matches record it as the resolver.
func SetUserID(ctx context.Context, userID string) context.Context {
	return set(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return get(ctx, UserIDKey)
}

// SetTickID tags the log lines written during one scheduler tick.
func SetTickID(ctx context.Context, tickID string) context.Context {
	return set(ctx, TickIDKey, tickID)
}

func SetSubmissionID(ctx context.Context, submissionID string) context.Context {
	return set(ctx, SubmissionIDKey, submissionID)
}
