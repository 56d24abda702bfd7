package viewstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/pkg/types"
)

// Namespace holds every saved view.
const Namespace = "drilldown.views"

// CustomColumnPrefix starts the key of every user-defined column.
const CustomColumnPrefix = "custom_"

// ViewID identifies a saved view.
type ViewID string

// Store saves and loads views over a KV. It adds no locking of its own;
// concurrent saves of the same id resolve to the last writer.
type Store struct {
	kv    KV
	log   logrus.FieldLogger
	clock func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// WithClock overrides the creation timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// NewStore creates a view store on kv.
func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{kv: kv, log: logrus.StandardLogger(), clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "viewstore")
	return s
}

// Save persists columns under name and returns the new view id. The
// column order is kept as given.
func (s *Store) Save(ctx context.Context, name string, columns []types.ColumnConfig) (ViewID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", dderrors.NewValidationError(dderrors.CodeInvalidRequest, "view name is required")
	}
	if err := validateColumns(columns); err != nil {
		return "", err
	}

	view := types.View{
		ID:        uuid.NewString(),
		Name:      name,
		Columns:   append([]types.ColumnConfig{}, columns...),
		CreatedAt: s.clock().UTC(),
	}
	doc, err := encode(view)
	if err != nil {
		return "", dderrors.NewInternalError("encode view", err)
	}
	if err := s.kv.Put(ctx, Namespace, view.ID, doc); err != nil {
		return "", dderrors.NewViewError(dderrors.CodeUploadFailed, "save view", err)
	}
	s.log.WithFields(logrus.Fields{"view": view.ID, "name": name, "columns": len(columns)}).Info("view saved")
	return ViewID(view.ID), nil
}

// List returns every saved view, newest first. Views that fail to decode
// are skipped and logged.
func (s *Store) List(ctx context.Context) ([]types.View, error) {
	entries, err := s.kv.List(ctx, Namespace)
	if err != nil {
		return nil, dderrors.NewViewError(dderrors.CodeDownloadFailed, "list views", err)
	}
	views := make([]types.View, 0, len(entries))
	for _, e := range entries {
		v, err := decode(e.Value)
		if err != nil {
			s.log.WithError(err).WithField("view", e.Key).Warn("skipping corrupt view")
			continue
		}
		views = append(views, v)
	}
	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID < views[j].ID
	})
	return views, nil
}

// Get returns the saved view id.
func (s *Store) Get(ctx context.Context, id ViewID) (types.View, error) {
	raw, err := s.kv.Get(ctx, Namespace, string(id))
	if errors.Is(err, ErrNotFound) {
		return types.View{}, dderrors.NewViewError(dderrors.CodeViewNotFound,
			fmt.Sprintf("view %q not found", id), err)
	}
	if err != nil {
		return types.View{}, dderrors.NewViewError(dderrors.CodeDownloadFailed, "load view", err)
	}
	v, err := decode(raw)
	if err != nil {
		return types.View{}, dderrors.NewViewError(dderrors.CodeViewCorrupt,
			fmt.Sprintf("view %q is corrupt", id), err)
	}
	return v, nil
}

// Load returns the columns of view id in their saved order.
func (s *Store) Load(ctx context.Context, id ViewID) ([]types.ColumnConfig, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return v.Columns, nil
}

// Delete removes view id. Deleting a missing view is not an error.
func (s *Store) Delete(ctx context.Context, id ViewID) error {
	if err := s.kv.Delete(ctx, Namespace, string(id)); err != nil {
		return dderrors.NewViewError(dderrors.CodeUploadFailed, "delete view", err)
	}
	s.log.WithField("view", string(id)).Info("view deleted")
	return nil
}

func validateColumns(columns []types.ColumnConfig) error {
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if c.Key == "" {
			return dderrors.NewValidationError(dderrors.CodeInvalidRequest,
				fmt.Sprintf("column %d has no key", i))
		}
		if _, dup := seen[c.Key]; dup {
			return dderrors.NewValidationError(dderrors.CodeInvalidRequest,
				fmt.Sprintf("duplicate column key %q", c.Key))
		}
		seen[c.Key] = struct{}{}
		switch c.Fixed {
		case "", types.FixedNone, types.FixedLeft, types.FixedRight:
		default:
			return dderrors.NewValidationError(dderrors.CodeInvalidRequest,
				fmt.Sprintf("column %q: invalid fixed %q", c.Key, c.Fixed))
		}
		if c.IsCustom && strings.TrimSpace(c.Expression) == "" {
			return dderrors.NewValidationError(dderrors.CodeInvalidRequest,
				fmt.Sprintf("custom column %q has no expression", c.Key))
		}
	}
	return nil
}

func encode(v types.View) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decode(doc []byte) (types.View, error) {
	var v types.View
	raw, err := snappy.Decode(nil, doc)
	if err != nil {
		return v, fmt.Errorf("decompress: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("unmarshal: %w", err)
	}
	return v, nil
}

// NewCustomColumn returns a visible, sortable derived column. Its key is
// "custom_" followed by a ULID, so keys sort by creation and never collide
// with built-in column names.
func NewCustomColumn(label, expression string) types.ColumnConfig {
	return types.ColumnConfig{
		Key:        CustomColumnPrefix + ulid.Make().String(),
		Label:      label,
		Visible:    true,
		Width:      120,
		Fixed:      types.FixedNone,
		Sortable:   true,
		IsCustom:   true,
		Expression: expression,
	}
}

// IsCustomKey reports whether key names a user-defined column.
func IsCustomKey(key string) bool {
	return strings.HasPrefix(key, CustomColumnPrefix)
}

// DefaultColumns returns the stock ad report columns.
func DefaultColumns() []types.ColumnConfig {
	col := func(key, label string, width int) types.ColumnConfig {
		return types.ColumnConfig{Key: key, Label: label, Visible: true, Width: width, Fixed: types.FixedNone, Sortable: true}
	}
	name := col("name", "Name", 200)
	name.Fixed = types.FixedLeft
	name.Sortable = false
	return []types.ColumnConfig{
		name,
		col("impressions", "Impressions", 120),
		col("clicks", "Clicks", 120),
		col("ctr", "CTR", 100),
		col("cost", "Cost", 120),
		col("conversions", "Conversions", 120),
		col("cvr", "CVR", 100),
		col("gmv", "GMV", 140),
		col("roi", "ROI", 100),
	}
}
