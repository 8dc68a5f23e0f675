package d4

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LogStep(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, nil)).WithRun("r1")
	ctx := context.Background()

	l.LogStep(ctx, StepExpand, 7, time.Second, nil)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "expand", rec["step"])
	assert.Equal(t, "r1", rec["run"])
	assert.Equal(t, float64(7), rec["records"])

	buf.Reset()
	l.LogStep(ctx, StepExpand, 0, time.Second, errors.New("boom"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.NotPanics(t, func() {
		l.LogRun(context.Background(), 1, time.Millisecond, nil)
	})
}
