// Package workspace owns the single application state and every operation derived
// from it.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/whynot231455/mmm-sol-dashboard/internal/cache"
	"github.com/whynot231455/mmm-sol-dashboard/internal/ingest"
	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
	"github.com/whynot231455/mmm-sol-dashboard/internal/services"
	"github.com/whynot231455/mmm-sol-dashboard/internal/state"
	"github.com/whynot231455/mmm-sol-dashboard/internal/telemetry"
	"github.com/whynot231455/mmm-sol-dashboard/internal/transform"
)

// ErrArchiveDisabled is returned by dataset archive operations when no database
// is configured
var ErrArchiveDisabled = errors.New("dataset archive is not configured")

// ImportError reports an upload that could not be parsed as CSV
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string { return e.Err.Error() }

func (e *ImportError) Unwrap() error { return e.Err }

// Store persists the serialized workspace under a fixed key
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// SeriesCache memoizes pipeline results by pipeline key
type SeriesCache interface {
	Get(ctx context.Context, key string) (*transform.Result, bool)
	Set(ctx context.Context, key string, result *transform.Result)
	Clear(ctx context.Context) error
}

// DatasetArchive keeps previously imported datasets
type DatasetArchive interface {
	Save(ctx context.Context, ds *models.Dataset) error
	Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	List(ctx context.Context, limit int) ([]models.DatasetSummary, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Options configures a Service. Store and Series default to in-memory
// implementations; Archive may stay nil.
type Options struct {
	Store       Store
	Series      SeriesCache
	Archive     DatasetArchive
	Logger      *logrus.Logger
	TrendWindow int
}

// ImportResult describes a freshly imported dataset
type ImportResult struct {
	Dataset  models.DatasetSummary `json:"dataset"`
	Mapping  models.ColumnMapping  `json:"mapping"`
	Detected bool                  `json:"detected"`
	Archived bool                  `json:"archived"`
}

// Service is the only writer of the workspace state. Writers serialize on mu;
// readers take a consistent snapshot of the state and its resolved records.
type Service struct {
	mu      sync.RWMutex
	state   state.AppState
	records []models.Record

	store   Store
	series  SeriesCache
	archive DatasetArchive
	logger  *logrus.Logger

	pipeline    *transform.Pipeline
	measure     *services.MeasureService
	optimizer   *services.OptimizationService
	forecaster  *services.ForecastService
	tracer      *telemetry.BusinessTracer
	trendWindow int
}

// NewService creates a workspace in its initial state. Call Restore to load the
// persisted state.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	store := opts.Store
	if store == nil {
		store = cache.NewInMemoryWorkspaceStore()
	}
	series := opts.Series
	if series == nil {
		series = cache.NewInMemorySeriesCache(cache.DefaultSeriesTTL)
	}

	return &Service{
		state:       state.Initial(),
		store:       store,
		series:      series,
		archive:     opts.Archive,
		logger:      logger,
		pipeline:    transform.NewPipeline(logger),
		measure:     services.NewMeasureService(logger),
		optimizer:   services.NewOptimizationService(logger),
		forecaster:  services.NewForecastService(logger),
		tracer:      telemetry.NewBusinessTracer(),
		trendWindow: opts.TrendWindow,
	}
}

// Restore replaces the in-memory state with the persisted one. A missing blob
// leaves the initial state in place.
func (s *Service) Restore(ctx context.Context) error {
	data, err := s.store.Load(ctx)
	if errors.Is(err, cache.ErrNotFound) {
		s.logger.Info("No persisted workspace found, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore workspace: %w", err)
	}

	restored := state.Initial()
	if err := json.Unmarshal(data, &restored); err != nil {
		return fmt.Errorf("failed to decode persisted workspace: %w", err)
	}
	if restored.Mapping == nil {
		restored.Mapping = models.ColumnMapping{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = restored
	s.records = ingest.Resolve(restored.Dataset, restored.Mapping)

	s.logger.WithFields(logrus.Fields{
		"version": restored.Version,
		"rows":    restored.Dataset.Len(),
	}).Info("Workspace restored")
	return nil
}

// Snapshot returns a copy of the current state
func (s *Service) Snapshot() state.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Service) view() (state.AppState, []models.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), s.records
}

// Dispatch applies a single action
func (s *Service) Dispatch(ctx context.Context, action state.Action) (state.AppState, error) {
	return s.apply(ctx, func(state.AppState) ([]state.Action, error) {
		return []state.Action{action}, nil
	})
}

// apply reduces the actions built from the current state and persists the result.
// Nothing changes when any action is rejected or persistence fails.
func (s *Service) apply(ctx context.Context, build func(current state.AppState) ([]state.Action, error)) (state.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions, err := build(s.state)
	if err != nil {
		return s.state.Clone(), err
	}

	next := s.state
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		next, err = state.Reduce(next, a)
		if err != nil {
			return s.state.Clone(), err
		}
		names = append(names, a.Name())
	}

	if err := s.persist(ctx, next); err != nil {
		return s.state.Clone(), err
	}

	if next.DatasetID() != s.state.DatasetID() || !sameMapping(next.Mapping, s.state.Mapping) {
		s.records = ingest.Resolve(next.Dataset, next.Mapping)
	}
	s.state = next

	s.logger.WithFields(logrus.Fields{
		"actions": names,
		"version": next.Version,
	}).Debug("Workspace updated")
	return next.Clone(), nil
}

func (s *Service) persist(ctx context.Context, st state.AppState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode workspace: %w", err)
	}
	if err := s.store.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to persist workspace: %w", err)
	}
	return nil
}

// Import parses a CSV upload, archives it when an archive is configured and makes
// it the current dataset. A mapping is detected when none survives the import.
func (s *Service) Import(ctx context.Context, r io.Reader, name string) (*ImportResult, error) {
	ctx, span := s.tracer.TraceImport(ctx, name)
	defer span.End()

	ds, err := ingest.ParseCSV(r, name)
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, &ImportError{Err: err}
	}

	result := &ImportResult{Dataset: ds.Summary()}
	if s.archive != nil {
		if err := s.archive.Save(ctx, ds); err != nil {
			s.logger.WithError(err).WithField("dataset_id", ds.ID).Warn("Failed to archive dataset")
		} else {
			result.Archived = true
		}
	}

	next, err := s.apply(ctx, func(current state.AppState) ([]state.Action, error) {
		return s.loadActions(current, ds, result), nil
	})
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, err
	}
	result.Mapping = next.Mapping
	s.tracer.RecordImport(span, telemetry.ImportMetrics{
		DatasetID: ds.ID.String(),
		Rows:      ds.Len(),
		Columns:   len(ds.Headers),
		Detected:  result.Detected,
		Archived:  result.Archived,
	})

	s.logger.WithFields(logrus.Fields{
		"dataset_id": ds.ID,
		"name":       name,
		"rows":       ds.Len(),
		"headers":    len(ds.Headers),
		"detected":   result.Detected,
	}).Info("Dataset imported")
	return result, nil
}

func (s *Service) loadActions(current state.AppState, ds *models.Dataset, result *ImportResult) []state.Action {
	actions := []state.Action{state.SetData{Dataset: ds}}

	kept := 0
	for _, col := range current.Mapping {
		if ds.HasHeader(col) {
			kept++
		}
	}
	if kept == 0 {
		if detected := ingest.DetectMapping(ds.Headers); len(detected) > 0 {
			actions = append(actions, state.SetMapping{Mapping: detected})
			result.Detected = true
		}
	}
	return actions
}

// UpdateSettings merges a partial JSON settings document into the current settings
func (s *Service) UpdateSettings(ctx context.Context, body []byte) (state.AppState, error) {
	return s.apply(ctx, func(current state.AppState) ([]state.Action, error) {
		patch, err := models.DecodeSettingsPatch(current.Transform, body)
		if err != nil {
			return nil, err
		}
		return []state.Action{state.SetTransformSettings{Patch: patch}}, nil
	})
}

// Reset clears the workspace, its persisted blob and the series cache
func (s *Service) Reset(ctx context.Context) (state.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := state.Reduce(s.state, state.Reset{})
	if err != nil {
		return s.state.Clone(), err
	}
	if err := s.store.Delete(ctx); err != nil {
		return s.state.Clone(), fmt.Errorf("failed to delete persisted workspace: %w", err)
	}
	if err := s.series.Clear(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to clear series cache")
	}
	s.state = next
	s.records = nil

	s.logger.WithField("version", next.Version).Info("Workspace reset")
	return next.Clone(), nil
}

// Transform runs the pipeline over the current state, memoized by pipeline key
func (s *Service) Transform(ctx context.Context) *transform.Result {
	st, records := s.view()
	key := transform.Key(st.DatasetID(), st.Mapping, st.Transform)

	if cached, ok := s.series.Get(ctx, key); ok {
		return cached
	}

	result := s.pipeline.Run(ctx, transform.Input{
		DatasetID: st.DatasetID(),
		Headers:   st.Headers,
		Records:   records,
		Mapping:   st.Mapping,
	}, st.Transform)
	s.series.Set(ctx, key, result)
	return result
}

// Measure computes the measure report with the current filters, tagged with the
// currency of the same state. trendWindow 0 uses the configured default.
func (s *Service) Measure(trendWindow int) (*models.MeasureReport, bool) {
	st, records := s.view()
	if trendWindow == 0 {
		trendWindow = s.trendWindow
	}
	report, ok := s.measure.Compute(records, st.Mapping, st.Filters, trendWindow)
	if ok {
		report.Currency = st.Transform.Currency
	}
	return report, ok
}

// Optimize reallocates params.TotalBudget across channels
func (s *Service) Optimize(ctx context.Context, params models.OptimizationParams) (*models.OptimizationPlan, error) {
	_, span := s.tracer.TraceReallocation(ctx, params.TotalBudget.InexactFloat64(), len(params.ChannelWeights))
	defer span.End()

	st, records := s.view()
	plan, err := s.optimizer.Reallocate(records, st.Mapping, params)
	switch {
	case err != nil:
		s.tracer.RecordError(span, err)
	case plan == nil:
		s.tracer.RecordEmpty(span, "mapping incomplete or no records")
	default:
		allocated := decimal.Zero
		for _, c := range plan.Channels {
			allocated = allocated.Add(c.ProposedSpend)
		}
		s.tracer.RecordReallocation(span, telemetry.ReallocationMetrics{
			Channels:       len(plan.Channels),
			ProjectedLift:  plan.Metrics.ProjectedRevenueLift.InexactFloat64(),
			ProjectedROAS:  plan.Metrics.EstimatedROAS.InexactFloat64(),
			AllocatedTotal: allocated.InexactFloat64(),
		})
	}
	return plan, err
}

// Predict projects the next months under sim
func (s *Service) Predict(ctx context.Context, sim models.Simulation) (*models.Forecast, bool) {
	_, span := s.tracer.TraceForecast(ctx, sim.SpendChange, sim.Seasonality, sim.ExcludeOutliers)
	defer span.End()

	st, records := s.view()
	forecast, ok := s.forecaster.Project(records, st.Mapping, sim)
	if !ok {
		s.tracer.RecordEmpty(span, "mapping incomplete or no dated records")
	}
	return forecast, ok
}

// Preflight reports whether the data is ready for modelling
func (s *Service) Preflight() models.Preflight {
	st, records := s.view()

	channels := models.UniqueValues(records, func(r models.Record) string { return r.Channel })
	if channels == nil {
		channels = []string{}
	}
	unmapped := st.Mapping.Missing(models.FieldDate, models.FieldRevenue, models.FieldSpend)
	if unmapped == nil {
		unmapped = []models.Field{}
	}

	unparsable := 0
	if _, ok := st.Mapping.Column(models.FieldDate); ok {
		unparsable = ingest.UnparsableDates(records)
	}

	return models.Preflight{
		Rows:              st.Dataset.Len(),
		MissingValues:     ingest.MissingValues(st.Dataset),
		AvailableChannels: channels,
		UnmappedFields:    unmapped,
		UnparsableDates:   unparsable,
		Ready:             st.Dataset.Len() > 0 && len(unmapped) == 0,
	}
}

// Datasets lists the archived datasets
func (s *Service) Datasets(ctx context.Context, limit int) ([]models.DatasetSummary, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.List(ctx, limit)
}

// LoadDataset makes an archived dataset the current one
func (s *Service) LoadDataset(ctx context.Context, id uuid.UUID) (*ImportResult, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	ds, err := s.archive.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Dataset: ds.Summary(), Archived: true}
	next, err := s.apply(ctx, func(current state.AppState) ([]state.Action, error) {
		return s.loadActions(current, ds, result), nil
	})
	if err != nil {
		return nil, err
	}
	result.Mapping = next.Mapping
	return result, nil
}

// DeleteDataset removes an archived dataset. The current dataset is unaffected.
func (s *Service) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	if s.archive == nil {
		return ErrArchiveDisabled
	}
	return s.archive.Delete(ctx, id)
}

func sameMapping(a, b models.ColumnMapping) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
