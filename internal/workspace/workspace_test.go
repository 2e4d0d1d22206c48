package workspace

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whynot231455/mmm-sol-dashboard/internal/cache"
	"github.com/whynot231455/mmm-sol-dashboard/internal/database"
	"github.com/whynot231455/mmm-sol-dashboard/internal/ingest"
	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
	"github.com/whynot231455/mmm-sol-dashboard/internal/state"
	"github.com/whynot231455/mmm-sol-dashboard/internal/transform"
	"github.com/whynot231455/mmm-sol-dashboard/internal/utils"
)

const salesCSV = "Date,Revenue,Spend,Channel,Country\n" +
	"2024-01-01,500,100,Search,US\n" +
	"2024-01-02,300,150,Social,UK\n" +
	"2024-01-03,400,100,Search,\n" +
	"2024-01-04,1000,200,TV,US\n"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return NewService(opts)
}

type memoryArchive struct {
	mu       sync.Mutex
	datasets map[uuid.UUID]*models.Dataset
	saveErr  error
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{datasets: make(map[uuid.UUID]*models.Dataset)}
}

func (a *memoryArchive) Save(_ context.Context, ds *models.Dataset) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saveErr != nil {
		return a.saveErr
	}
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

func (a *memoryArchive) List(_ context.Context, _ int) ([]models.DatasetSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.DatasetSummary, 0, len(a.datasets))
	for _, ds := range a.datasets {
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

type failingStore struct {
	*cache.InMemoryWorkspaceStore
	fail bool
}

func (s *failingStore) Save(ctx context.Context, data []byte) error {
	if s.fail {
		return errors.New("store unavailable")
	}
	return s.InMemoryWorkspaceStore.Save(ctx, data)
}

func TestImport_DetectsMappingAndPersists(t *testing.T) {
	store := cache.NewInMemoryWorkspaceStore()
	svc := newTestService(t, Options{Store: store})
	ctx := context.Background()

	result, err := svc.Import(ctx, strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)

	assert.True(t, result.Detected)
	assert.False(t, result.Archived)
	assert.Equal(t, 4, result.Dataset.RowCount)
	assert.Equal(t, "Revenue", result.Mapping[models.FieldRevenue])
	assert.Equal(t, "Channel", result.Mapping[models.FieldChannel])

	snap := svc.Snapshot()
	assert.True(t, snap.IsLoaded)
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, []string{"Date", "Revenue", "Spend", "Channel", "Country"}, snap.Headers)

	restored := newTestService(t, Options{Store: store})
	require.NoError(t, restored.Restore(ctx))
	again := restored.Snapshot()
	assert.Equal(t, snap.Version, again.Version)
	assert.Equal(t, snap.Mapping, again.Mapping)
	assert.Equal(t, 4, again.Dataset.Len())

	report, ok := restored.Measure(0)
	require.True(t, ok)
	assert.Equal(t, 2200.0, report.KPI.Revenue)
}

func TestImport_KeepsExistingMapping(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Import(ctx, strings.NewReader(salesCSV), "a.csv")
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, state.SetMapping{Mapping: models.ColumnMapping{
		models.FieldDate:    "Date",
		models.FieldRevenue: "Spend",
		models.FieldSpend:   "Revenue",
	}})
	require.NoError(t, err)

	result, err := svc.Import(ctx, strings.NewReader(salesCSV), "b.csv")
	require.NoError(t, err)
	assert.False(t, result.Detected)
	assert.Equal(t, "Spend", result.Mapping[models.FieldRevenue])
}

func TestImport_InvalidCSV(t *testing.T) {
	svc := newTestService(t, Options{})

	_, err := svc.Import(context.Background(), strings.NewReader(""), "empty.csv")
	require.Error(t, err)
	var importErr *ImportError
	assert.ErrorAs(t, err, &importErr)
	assert.ErrorIs(t, err, ingest.ErrNoHeader)
	assert.Equal(t, uint64(0), svc.Snapshot().Version)
}

func TestImport_ArchivesDataset(t *testing.T) {
	archive := newMemoryArchive()
	svc := newTestService(t, Options{Archive: archive})
	ctx := context.Background()

	result, err := svc.Import(ctx, strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)
	assert.True(t, result.Archived)

	list, err := svc.Datasets(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, result.Dataset.ID, list[0].ID)
}

func TestImport_ArchiveFailureIsNotFatal(t *testing.T) {
	archive := newMemoryArchive()
	archive.saveErr = errors.New("db down")
	svc := newTestService(t, Options{Archive: archive})

	result, err := svc.Import(context.Background(), strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)
	assert.False(t, result.Archived)
	assert.True(t, svc.Snapshot().IsLoaded)
}

func TestDispatch_RejectedActionLeavesState(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	_, err := svc.Import(ctx, strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)
	before := svc.Snapshot()

	_, err = svc.Dispatch(ctx, state.SetMapping{Mapping: models.ColumnMapping{models.FieldSpend: "Nope"}})
	require.Error(t, err)
	assert.True(t, utils.IsValidationError(err))
	assert.Equal(t, before.Version, svc.Snapshot().Version)
	assert.Equal(t, before.Mapping, svc.Snapshot().Mapping)
}

func TestDispatch_PersistFailureRollsBack(t *testing.T) {
	store := &failingStore{InMemoryWorkspaceStore: cache.NewInMemoryWorkspaceStore()}
	svc := newTestService(t, Options{Store: store})
	ctx := context.Background()

	store.fail = true
	_, err := svc.Dispatch(ctx, state.SetActivePage{Page: state.PageOptimize})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist workspace")
	assert.Equal(t, state.PageMeasure, svc.Snapshot().ActivePage)

	store.fail = false
	next, err := svc.Dispatch(ctx, state.SetActivePage{Page: state.PageOptimize})
	require.NoError(t, err)
	assert.Equal(t, state.PageOptimize, next.ActivePage)
	assert.Equal(t, uint64(1), next.Version)
}

func TestRestore_EmptyStore(t *testing.T) {
	svc := newTestService(t, Options{})
	require.NoError(t, svc.Restore(context.Background()))
	assert.Equal(t, state.Initial().Transform, svc.Snapshot().Transform)
	assert.False(t, svc.Snapshot().IsLoaded)
}

func TestRestore_CorruptBlob(t *testing.T) {
	store := cache.NewInMemoryWorkspaceStore()
	require.NoError(t, store.Save(context.Background(), []byte("{not json")))
	svc := newTestService(t, Options{Store: store})

	err := svc.Restore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode persisted workspace")
}

func TestUpdateSettings_MergesPartialBody(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	before := svc.Snapshot().Transform

	next, err := svc.UpdateSettings(ctx, []byte(`{"saturation":{"slope":2.5}}`))
	require.NoError(t, err)
	assert.Equal(t, 2.5, next.Transform.Saturation.Slope)
	assert.Equal(t, before.Saturation.CurveType, next.Transform.Saturation.CurveType)
	assert.Equal(t, before.Saturation.Inflection, next.Transform.Saturation.Inflection)
	assert.Equal(t, before.Adstock, next.Transform.Adstock)

	_, err = svc.UpdateSettings(ctx, []byte(`{"bogus":1}`))
	require.Error(t, err)
	assert.True(t, utils.IsValidationError(err))
	assert.Equal(t, 2.5, svc.Snapshot().Transform.Saturation.Slope)
}

type countingCache struct {
	*cache.InMemorySeriesCache
	sets int
}

func (c *countingCache) Set(ctx context.Context, key string, r *transform.Result) {
	c.sets++
	c.InMemorySeriesCache.Set(ctx, key, r)
}

func TestTransform_MemoizedByKey(t *testing.T) {
	series := &countingCache{InMemorySeriesCache: cache.NewInMemorySeriesCache(cache.DefaultSeriesTTL)}
	svc := newTestService(t, Options{Series: series})
	ctx := context.Background()
	_, err := svc.Import(ctx, strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)

	first := svc.Transform(ctx)
	second := svc.Transform(ctx)
	assert.Equal(t, 1, series.sets)
	assert.Equal(t, first.Key, second.Key)
	assert.Len(t, first.Final, 1)

	_, err = svc.UpdateSettings(ctx, []byte(`{"adstock":{"decay_rate":0.3}}`))
	require.NoError(t, err)
	third := svc.Transform(ctx)
	assert.Equal(t, 2, series.sets)
	assert.NotEqual(t, first.Key, third.Key)
}

func TestTransform_EmptyWorkspace(t *testing.T) {
	svc := newTestService(t, Options{})
	result := svc.Transform(context.Background())
	require.NotNil(t, result)
	assert.True(t, result.Empty())
}

func TestAnalytics_MissingMapping(t *testing.T) {
	svc := newTestService(t, Options{})

	_, ok := svc.Measure(7)
	assert.False(t, ok)
	_, ok = svc.Predict(context.Background(), models.Simulation{})
	assert.False(t, ok)
	plan, err := svc.Optimize(context.Background(), models.OptimizationParams{TotalBudget: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestMeasure_CarriesStateCurrency(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	_, err := svc.Import(ctx, strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)

	report, ok := svc.Measure(0)
	require.True(t, ok)
	assert.Equal(t, "USD ($)", report.Currency)

	_, err = svc.UpdateSettings(ctx, []byte(`{"currency":"EUR (€)"}`))
	require.NoError(t, err)
	report, ok = svc.Measure(0)
	require.True(t, ok)
	assert.Equal(t, "EUR (€)", report.Currency)
}

func TestOptimize_UsesResolvedRecords(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	_, err := svc.Import(ctx, strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)

	plan, err := svc.Optimize(ctx, models.OptimizationParams{TotalBudget: decimal.NewFromInt(550)})
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Len(t, plan.Channels, 3)

	_, err = svc.Optimize(ctx, models.OptimizationParams{TotalBudget: decimal.NewFromInt(-1)})
	assert.True(t, utils.IsValidationError(err))
}

func TestPreflight(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	empty := svc.Preflight()
	assert.False(t, empty.Ready)
	assert.Equal(t, []models.Field{models.FieldDate, models.FieldRevenue, models.FieldSpend}, empty.UnmappedFields)
	assert.Equal(t, []string{}, empty.AvailableChannels)

	_, err := svc.Import(ctx, strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)

	report := svc.Preflight()
	assert.True(t, report.Ready)
	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 1, report.MissingValues)
	assert.ElementsMatch(t, []string{"Search", "Social", "TV"}, report.AvailableChannels)
	assert.Empty(t, report.UnmappedFields)
	assert.Equal(t, 0, report.UnparsableDates)
}

func TestReset(t *testing.T) {
	store := cache.NewInMemoryWorkspaceStore()
	svc := newTestService(t, Options{Store: store})
	ctx := context.Background()
	_, err := svc.Import(ctx, strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)

	next, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.False(t, next.IsLoaded)
	assert.Nil(t, next.Dataset)
	assert.Empty(t, next.Mapping)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, cache.ErrNotFound)
	_, ok := svc.Measure(0)
	assert.False(t, ok)
}

func TestArchive_Disabled(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Datasets(ctx, 10)
	assert.ErrorIs(t, err, ErrArchiveDisabled)
	_, err = svc.LoadDataset(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrArchiveDisabled)
	assert.ErrorIs(t, svc.DeleteDataset(ctx, uuid.New()), ErrArchiveDisabled)
}

func TestLoadDataset(t *testing.T) {
	archive := newMemoryArchive()
	svc := newTestService(t, Options{Archive: archive})
	ctx := context.Background()

	first, err := svc.Import(ctx, strings.NewReader(salesCSV), "first.csv")
	require.NoError(t, err)
	second, err := svc.Import(ctx, strings.NewReader("Day,Cost\n2024-01-01,5\n"), "second.csv")
	require.NoError(t, err)
	assert.Equal(t, second.Dataset.ID.String(), svc.Snapshot().DatasetID())

	loaded, err := svc.LoadDataset(ctx, first.Dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Dataset.ID.String(), svc.Snapshot().DatasetID())
	assert.Equal(t, "Revenue", loaded.Mapping[models.FieldRevenue])

	_, err = svc.LoadDataset(ctx, uuid.New())
	assert.ErrorIs(t, err, database.ErrDatasetNotFound)

	require.NoError(t, svc.DeleteDataset(ctx, second.Dataset.ID))
	list, err := svc.Datasets(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	_, err := svc.Import(ctx, strings.NewReader(salesCSV), "sales.csv")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.Dispatch(ctx, state.SetFilter{Filters: models.Filters{Country: "US"}})
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.Measure(3)
			_ = svc.Transform(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(2+8), svc.Snapshot().Version)
}
