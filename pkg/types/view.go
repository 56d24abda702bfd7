package types

import "time"

// Fixed pins a column to one side of the table.
type Fixed string

const (
	FixedNone  Fixed = "none"
	FixedLeft  Fixed = "left"
	FixedRight Fixed = "right"
)

// ColumnConfig is the persisted configuration of one table column.
type ColumnConfig struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Visible    bool   `json:"visible"`
	Width      int    `json:"width"`
	Fixed      Fixed  `json:"fixed"`
	Sortable   bool   `json:"sortable"`
	IsCustom   bool   `json:"isCustom"`
	Expression string `json:"expression,omitempty"`
}

// View is a named, ordered snapshot of column configurations.
type View struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Columns   []ColumnConfig `json:"columns"`
	CreatedAt time.Time      `json:"createdAt"`
}
