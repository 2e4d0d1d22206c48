package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
	"github.com/whynot231455/mmm-sol-dashboard/internal/workspace"
)

func TestWorkspaceHandler_Import(t *testing.T) {
	router := newTestRouter(newTestWorkspace(nil))

	w, env := upload(t, router, "sales.csv", salesCSV)
	require.Equal(t, http.StatusOK, w.Code)

	var result workspace.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "sales.csv", result.Dataset.Name)
	assert.Equal(t, 4, result.Dataset.RowCount)
	assert.True(t, result.Detected)
	assert.False(t, result.Archived)
	assert.Equal(t, "Revenue", result.Mapping[models.FieldRevenue])
}

func TestWorkspaceHandler_ImportTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	router := newTestRouter(newTestWorkspace(nil))
	w, _ := upload(t, router, "sales.csv", salesCSV)
	require.Equal(t, http.StatusOK, w.Code)

	spans := make(map[string]tracetest.SpanStub)
	for _, s := range exporter.GetSpans() {
		spans[s.Name] = s
	}
	uploadSpan, ok := spans["import.upload"]
	require.True(t, ok)
	importSpan, ok := spans["workspace.import"]
	require.True(t, ok)
	assert.Equal(t, uploadSpan.SpanContext.SpanID(), importSpan.Parent.SpanID())

	attrs := make(map[string]int64)
	for _, kv := range uploadSpan.Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInt64()
	}
	assert.Equal(t, int64(4), attrs["dataset.rows"])
	assert.Positive(t, attrs["upload.size_bytes"])
}

func TestWorkspaceHandler_ImportErrors(t *testing.T) {
	router := newTestRouter(newTestWorkspace(nil))

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewBufferString("x"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		env := decode(t, w)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "file is required", env.Error)
	})

	t.Run("empty csv", func(t *testing.T) {
		w, env := upload(t, router, "empty.csv", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, env.Error)
	})
}

func TestWorkspaceHandler_GetState(t *testing.T) {
	router := newTestRouter(newTestWorkspace(nil))

	w, env := perform(t, router, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var empty StateResponse
	require.NoError(t, json.Unmarshal(env.Data, &empty))
	assert.Nil(t, empty.Dataset)
	assert.False(t, empty.IsLoaded)
	assert.Equal(t, "measure", string(empty.ActivePage))

	upload(t, router, "sales.csv", salesCSV)
	w, env = perform(t, router, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(env.Data), `"rows"`)

	var loaded StateResponse
	require.NoError(t, json.Unmarshal(env.Data, &loaded))
	require.NotNil(t, loaded.Dataset)
	assert.Equal(t, 4, loaded.Dataset.RowCount)
	assert.True(t, loaded.IsLoaded)
	assert.Len(t, loaded.Headers, 5)
}

func TestWorkspaceHandler_SetMapping(t *testing.T) {
	router := newTestRouter(newTestWorkspace(nil))
	upload(t, router, "sales.csv", salesCSV)

	w, env := perform(t, router, http.MethodPut, "/mapping", `{"date":"Date","revenue":"Revenue","spend":"Spend"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var st StateResponse
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "Spend", st.Mapping[models.FieldSpend])
	assert.False(t, st.Mapping.Has(models.FieldChannel))

	w, env = perform(t, router, http.MethodPut, "/mapping", `{"revenue":"Sales"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error, "Sales")

	w, _ = perform(t, router, http.MethodPut, "/mapping", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkspaceHandler_SetFiltersAndPage(t *testing.T) {
	router := newTestRouter(newTestWorkspace(nil))

	w, env := perform(t, router, http.MethodPut, "/filters", `{"country":"US","channel":"All","date_range":"All Time"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var st StateResponse
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "US", st.Filters.Country)

	w, _ = perform(t, router, http.MethodPut, "/filters", `{"date_range":"Yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = perform(t, router, http.MethodPut, "/page", `{"page":"optimize"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "optimize", string(st.ActivePage))

	w, _ = perform(t, router, http.MethodPut, "/page", `{"page":"nowhere"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = perform(t, router, http.MethodPut, "/page", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkspaceHandler_UpdateSettings(t *testing.T) {
	router := newTestRouter(newTestWorkspace(nil))

	w, env := perform(t, router, http.MethodPatch, "/transform/settings", `{"adstock":{"decay_rate":0.3}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var settings models.TransformSettings
	require.NoError(t, json.Unmarshal(env.Data, &settings))
	assert.Equal(t, 0.3, settings.Adstock.DecayRate)
	assert.Equal(t, models.CurveHill, settings.Saturation.CurveType)
	assert.Equal(t, models.GranularityWeekly, settings.Aggregation.Granularity)

	w, _ = perform(t, router, http.MethodPatch, "/transform/settings", `{"adstock":{"decay_rate":1.5}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkspaceHandler_ResetState(t *testing.T) {
	router := newTestRouter(newTestWorkspace(nil))
	upload(t, router, "sales.csv", salesCSV)

	w, env := perform(t, router, http.MethodDelete, "/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st StateResponse
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Nil(t, st.Dataset)
	assert.False(t, st.IsLoaded)
	assert.Empty(t, st.Mapping)
}
