// Package state holds the dashboard application state and the pure reducer that
// advances it.
package state

import (
	"time"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
	"github.com/whynot231455/mmm-sol-dashboard/internal/utils"
)

// Page identifies a dashboard view
type Page string

const (
	PageMeasure   Page = "measure"
	PagePredict   Page = "predict"
	PageOptimize  Page = "optimize"
	PageImport    Page = "import"
	PageConnect   Page = "connect"
	PageTransform Page = "transform"
	PageTrain     Page = "train"
	PageValidate  Page = "validate"
	PageCalibrate Page = "calibrate"
)

// Pages lists every known page
var Pages = []Page{
	PageMeasure, PagePredict, PageOptimize,
	PageImport, PageConnect, PageTransform,
	PageTrain, PageValidate, PageCalibrate,
}

// IsValid reports whether p is a known page
func (p Page) IsValid() bool {
	for _, known := range Pages {
		if p == known {
			return true
		}
	}
	return false
}

// AppState is the whole workspace: the imported dataset plus everything the user
// configured on top of it. Dataset is shared between states and never mutated.
type AppState struct {
	Dataset    *models.Dataset          `json:"dataset,omitempty"`
	Headers    []string                 `json:"headers"`
	Mapping    models.ColumnMapping     `json:"mapping"`
	Filters    models.Filters           `json:"filters"`
	Transform  models.TransformSettings `json:"transform"`
	ActivePage Page                     `json:"active_page"`
	IsLoaded   bool                     `json:"is_loaded"`
	Version    uint64                   `json:"version"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// Initial returns the state of an empty workspace
func Initial() AppState {
	return AppState{
		Headers:    []string{},
		Mapping:    models.ColumnMapping{},
		Filters:    models.DefaultFilters(),
		Transform:  models.DefaultTransformSettings(),
		ActivePage: PageMeasure,
	}
}

// Clone returns a copy that shares only the immutable dataset
func (s AppState) Clone() AppState {
	out := s
	out.Headers = append([]string(nil), s.Headers...)
	if s.Mapping != nil {
		out.Mapping = s.Mapping.Clone()
	}
	return out
}

// DatasetID returns the loaded dataset id or an empty string
func (s AppState) DatasetID() string {
	if s.Dataset == nil {
		return ""
	}
	return s.Dataset.ID.String()
}

// Action is a single state transition
type Action interface {
	Name() string
	apply(s AppState) (AppState, error)
}

// Reduce applies a to s and returns the next state. s is never modified; on error
// the returned state is s unchanged.
func Reduce(s AppState, a Action) (AppState, error) {
	if a == nil {
		return s, utils.NewValidationError("action is required")
	}
	next, err := a.apply(s.Clone())
	if err != nil {
		return s, err
	}
	next.Version = s.Version + 1
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

// SetData replaces the dataset. A mapping that references headers the new dataset
// lacks is dropped role by role.
type SetData struct {
	Dataset *models.Dataset
}

func (SetData) Name() string { return "set_data" }

func (a SetData) apply(s AppState) (AppState, error) {
	if a.Dataset == nil {
		return s, utils.NewValidationError("dataset is required")
	}
	s.Dataset = a.Dataset
	s.Headers = append([]string(nil), a.Dataset.Headers...)
	s.IsLoaded = a.Dataset.Len() > 0
	for field, col := range s.Mapping {
		if !a.Dataset.HasHeader(col) {
			delete(s.Mapping, field)
		}
	}
	return s, nil
}

// SetMapping replaces the column mapping. Every role must be known and, once a
// dataset is loaded, every header must exist in it.
type SetMapping struct {
	Mapping models.ColumnMapping
}

func (SetMapping) Name() string { return "set_mapping" }

func (a SetMapping) apply(s AppState) (AppState, error) {
	mapping := models.ColumnMapping{}
	for field, col := range a.Mapping {
		if !field.IsValid() {
			return s, utils.NewValidationErrorf("unknown mapping field %q", field)
		}
		if col == "" {
			continue
		}
		if s.Dataset != nil && !s.Dataset.HasHeader(col) {
			return s, utils.NewValidationErrorf("column %q for %s is not in the dataset", col, field)
		}
		mapping[field] = col
	}
	s.Mapping = mapping
	return s, nil
}

// SetFilter replaces the measure filters. Empty members reset to All.
type SetFilter struct {
	Filters models.Filters
}

func (SetFilter) Name() string { return "set_filter" }

func (a SetFilter) apply(s AppState) (AppState, error) {
	if err := a.Filters.Validate(); err != nil {
		return s, err
	}
	f := a.Filters
	def := models.DefaultFilters()
	if f.Country == "" {
		f.Country = def.Country
	}
	if f.Channel == "" {
		f.Channel = def.Channel
	}
	if f.DateRange == "" {
		f.DateRange = def.DateRange
	}
	s.Filters = f
	return s, nil
}

// SetTransformSettings merges a partial patch into the current settings
type SetTransformSettings struct {
	Patch models.TransformSettingsPatch
}

func (SetTransformSettings) Name() string { return "set_transform_settings" }

func (a SetTransformSettings) apply(s AppState) (AppState, error) {
	next := s.Transform.Apply(a.Patch)
	if err := next.Validate(); err != nil {
		return s, err
	}
	s.Transform = next
	return s, nil
}

// SetActivePage switches the current view
type SetActivePage struct {
	Page Page
}

func (SetActivePage) Name() string { return "set_active_page" }

func (a SetActivePage) apply(s AppState) (AppState, error) {
	if !a.Page.IsValid() {
		return s, utils.NewValidationErrorf("unknown page %q", a.Page)
	}
	s.ActivePage = a.Page
	return s, nil
}

// Reset clears the workspace back to its initial state
type Reset struct{}

func (Reset) Name() string { return "reset" }

func (Reset) apply(AppState) (AppState, error) {
	return Initial(), nil
}
