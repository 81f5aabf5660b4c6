package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogFields(t *testing.T) {
	assert.Empty(t, LogFields(context.Background()))

	ctx := SetRequestID(context.Background(), "req-1")
	ctx = SetMethod(ctx, "POST")
	ctx = SetRoute(ctx, "/api/v1/routing/run")
	ctx = SetRemoteIP(ctx, "10.0.0.7")
	ctx = SetUserID(ctx, "ops")
	ctx = SetTickID(ctx, "tick-1")
	ctx = SetSubmissionID(ctx, "sub-1")

	assert.Equal(t, map[string]any{
		"request_id":    "req-1",
		"method":        "POST",
		"route":         "/api/v1/routing/run",
		"remote_ip":     "10.0.0.7",
		"user_id":       "ops",
		"tick_id":       "tick-1",
		"submission_id": "sub-1",
	}, LogFields(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "ops", GetUserID(ctx))
}
