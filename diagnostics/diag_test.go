package diagnostics

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogUsesSeverityLevel(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	Log(l, Diagnostic{Severity: Warn, Code: StreamDesync, Summary: "buffer full", Evidence: map[string]any{"occupancy": 3}})

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "warn", got["level"])
	assert.Equal(t, StreamDesync, got["code"])
	assert.Equal(t, "buffer full", got["message"])
	assert.EqualValues(t, 3, got["occupancy"])
}

func TestTee(t *testing.T) {
	var a, b []string
	s := Tee(
		func(d Diagnostic) { a = append(a, d.Code) },
		nil,
		func(d Diagnostic) { b = append(b, d.Code) },
	)
	s(Diagnostic{Code: "X"})
	assert.Equal(t, []string{"X"}, a)
	assert.Equal(t, []string{"X"}, b)
}

func TestString(t *testing.T) {
	d := Diagnostic{Severity: Err, Code: TransmitFailed, Summary: "send failed", Detail: "spi: timeout"}
	assert.Equal(t, "[error] TRANSMIT.FAILED: send failed (spi: timeout)", d.String())
	d.Detail = ""
	assert.Equal(t, "[error] TRANSMIT.FAILED: send failed", d.String())
}
