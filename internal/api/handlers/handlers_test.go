package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/whynot231455/mmm-sol-dashboard/internal/database"
	"github.com/whynot231455/mmm-sol-dashboard/internal/logging"
	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
	"github.com/whynot231455/mmm-sol-dashboard/internal/workspace"
)

const salesCSV = "Date,Revenue,Spend,Channel,Country\n" +
	"2024-01-01,500,100,Search,US\n" +
	"2024-01-02,300,150,Social,UK\n" +
	"2024-01-03,400,100,Search,\n" +
	"2024-01-04,1000,200,TV,US\n"

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

type memoryArchive struct {
	mu       sync.Mutex
	datasets map[uuid.UUID]*models.Dataset
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{datasets: make(map[uuid.UUID]*models.Dataset)}
}

func (a *memoryArchive) Save(_ context.Context, ds *models.Dataset) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.datasets[ds.ID] = ds
	return nil
}

func (a *memoryArchive) Get(_ context.Context, id uuid.UUID) (*models.Dataset, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ds, ok := a.datasets[id]
	if !ok {
		return nil, database.ErrDatasetNotFound
	}
	return ds, nil
}

func (a *memoryArchive) List(_ context.Context, limit int) ([]models.DatasetSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.DatasetSummary, 0, len(a.datasets))
	for _, ds := range a.datasets {
		if len(out) == limit {
			break
		}
		out = append(out, ds.Summary())
	}
	return out, nil
}

func (a *memoryArchive) Delete(_ context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.datasets[id]; !ok {
		return database.ErrDatasetNotFound
	}
	delete(a.datasets, id)
	return nil
}

func newTestWorkspace(archive workspace.DatasetArchive) *workspace.Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return workspace.NewService(workspace.Options{Logger: logger, Archive: archive})
}

func newTestRouter(ws *workspace.Service) *gin.Engine {
	router := gin.New()
	logger := logging.NewStandardLoggerWithWriter(io.Discard, "info", "")
	wh := NewWorkspaceHandler(ws, logger)
	ah := NewAnalysisHandler(ws)
	dh := NewDatasetHandler(ws, logger)

	router.POST("/import", wh.Import)
	router.GET("/state", wh.GetState)
	router.DELETE("/state", wh.ResetState)
	router.PUT("/mapping", wh.SetMapping)
	router.PUT("/filters", wh.SetFilters)
	router.PUT("/page", wh.SetPage)
	router.PATCH("/transform/settings", wh.UpdateSettings)
	router.GET("/transform", ah.GetTransform)
	router.GET("/transform/curve", ah.GetCurve)
	router.GET("/measure", ah.GetMeasure)
	router.POST("/optimize", ah.PostOptimize)
	router.POST("/predict", ah.PostPredict)
	router.GET("/preflight", ah.GetPreflight)
	router.GET("/datasets", dh.ListDatasets)
	router.POST("/datasets/:id/load", dh.LoadDataset)
	router.DELETE("/datasets/:id", dh.DeleteDataset)
	return router
}

func perform(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, decode(t, w)
}

func upload(t *testing.T, router http.Handler, name, content string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, decode(t, w)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return env
}
