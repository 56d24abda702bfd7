package expr

import (
	"github.com/arkilian/drilldown/pkg/types"
)

// AttrsLoader parses a row's side payload on demand.
type AttrsLoader func() (map[string]interface{}, error)

// RowEnv binds the fields of a row as variables. The attrs variable is
// resolved through the loader only when the expression reads it.
type RowEnv struct {
	row   types.Fielder
	attrs AttrsLoader
}

// NewRowEnv returns an Env over row. attrs may be nil, in which case attrs
// reads as null.
func NewRowEnv(row types.Fielder, attrs AttrsLoader) *RowEnv {
	return &RowEnv{row: row, attrs: attrs}
}

// Lookup implements Env. A payload that fails to parse reads as null, so
// member access on it fails the cell rather than the whole column.
func (e *RowEnv) Lookup(name string) (interface{}, bool) {
	if name == AttrsVar {
		if e.attrs == nil {
			return nil, true
		}
		m, err := e.attrs()
		if err != nil || m == nil {
			return nil, true
		}
		return m, true
	}
	return e.row.Field(name)
}
