package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_ExportsSpansToWriter(t *testing.T) {
	var buf bytes.Buffer
	tel, err := Setup(Options{ServiceName: "risk_calculator_test", Version: "test", Writer: &buf})
	require.NoError(t, err)

	_, span := GetTracer("otel-test").Start(context.Background(), "valuation")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))

	assert.Contains(t, buf.String(), `"Name":"valuation"`)
	assert.Contains(t, buf.String(), "risk_calculator_test")
}

func TestInitMetrics_Idempotent(t *testing.T) {
	require.NoError(t, InitMetrics())
	require.NoError(t, InitMetrics())
	assert.NotNil(t, GetMeter("otel-test"))
	assert.True(t, GetGlobalMetrics().ready())
}
