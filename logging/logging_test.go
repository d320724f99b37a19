package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/logging"
)

func TestNew_JSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "employee_id", "emp-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "emp-1", line["employee_id"])
}

func TestNew_Rejects(t *testing.T) {
	_, err := logging.New(&bytes.Buffer{}, "loud", "text")
	assert.Error(t, err)
	_, err = logging.New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestFrom_FallsBackToDefault(t *testing.T) {
	assert.Same(t, logging.Default(), logging.From(context.Background()))

	logger, err := logging.New(&bytes.Buffer{}, "debug", "text")
	require.NoError(t, err)
	ctx := logging.WithLogger(context.Background(), logger)
	assert.Same(t, logger, logging.From(ctx))
}

func TestErrAttrs_IncludesGoerrValues(t *testing.T) {
	err := goerr.New("save failed", goerr.V("record_id", "r1"))
	attrs := logging.ErrAttrs(err)
	require.GreaterOrEqual(t, len(attrs), 4)
	assert.Equal(t, "values", attrs[2])
}
