package handlers

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRespondWithErrorWritesStatusAndBody(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondWithError(zap.NewNop(), recorder, 418, "Teapot", "", nil)

	assert.Equal(t, 418, recorder.Code)
	assert.Equal(t, "Teapot", strings.TrimSpace(recorder.Body.String()))
}

func TestRespondWithErrorLogsMessage(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	recorder := httptest.NewRecorder()

	respondWithError(zap.New(core), recorder, 500, "Internal server error", "", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Internal server error", entries[0].Message)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}

func TestRespondJSONError(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSONError(zap.NewNop(), recorder, 400, "name: name is required", errors.New("invalid"))

	assert.Equal(t, 400, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"name: name is required"}`, recorder.Body.String())
}
