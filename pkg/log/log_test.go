package log

import (
	contextPkg "TwoStageVision/pkg/context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
)

func TestErrorWithTraceID(t *testing.T) {
	l, hook := test.NewNullLogger()

	traceID := ErrorWithTraceID(l, Fields{RequestIDKey: "01J9Z"}, "failed")
	require.Equal(t, "01J9Z", traceID)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	require.Equal(t, "01J9Z", hook.LastEntry().Data["trace_id"])

	traceID = ErrorWithTraceID(l, nil, "failed")
	_, err := uuid.Parse(traceID)
	require.NoError(t, err)
	require.Len(t, hook.AllEntries(), 2)
}

func TestWithRequestID(t *testing.T) {
	l, hook := test.NewNullLogger()

	WithRequestID(l, contextPkg.WithRequestID(context.Background(), "req-1")).Info("hello")
	require.Equal(t, "req-1", hook.LastEntry().Data[RequestIDKey])

	WithRequestID(l, context.Background()).Info("hello")
	require.Equal(t, "unknown", hook.LastEntry().Data[RequestIDKey])
}
