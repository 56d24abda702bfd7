package aggregator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/arkilian/drilldown/pkg/types"
)

// GroupKey is a string representation of a group-by key tuple.
type GroupKey = string

// group holds the summed measures of one key tuple.
type group struct {
	keyVals  []string
	measures types.Measures
	rows     int
}

// grouper sums fact measures per key tuple and remembers the order in which
// keys were first seen so output is deterministic.
type grouper struct {
	groups map[GroupKey]*group
	order  []GroupKey
}

func newGrouper() *grouper {
	return &grouper{groups: make(map[GroupKey]*group)}
}

// add accumulates m into the group identified by t.
func (g *grouper) add(t keyTuple, m types.Measures) {
	gr, exists := g.groups[t.key]
	if !exists {
		gr = &group{keyVals: t.vals}
		g.groups[t.key] = gr
		g.order = append(g.order, t.key)
	}
	gr.measures.Add(m)
	gr.rows++
}

// each visits groups in first-occurrence order.
func (g *grouper) each(fn func(*group)) {
	for _, key := range g.order {
		fn(g.groups[key])
	}
}

func (g *grouper) len() int {
	return len(g.order)
}

// nullKey is the rendered value of an absent field.
const nullKey = "<NULL>"

// keyTuple is a rendered key tuple and its encoded map key.
type keyTuple struct {
	vals []string
	key  GroupKey
}

// appendKeyPart encodes one tuple component. Present values are written as
// "<len>:<value>", so no byte inside a value can end a part early; an
// absent value is a bare "-", which never starts a length prefix.
func appendKeyPart(b []byte, s string, present bool) []byte {
	if !present {
		return append(b, '-')
	}
	b = strconv.AppendInt(b, int64(len(s)), 10)
	b = append(b, ':')
	return append(b, s...)
}

// keyPart renders a field value as a grouping key component. present is
// false when the row has no value for the field.
func keyPart(v interface{}, ok bool) (s string, present bool) {
	if !ok || v == nil {
		return nullKey, false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case time.Time:
		u := val.UTC()
		if u.Equal(types.Day(u)) {
			return u.Format("2006-01-02"), true
		}
		return u.Format(time.RFC3339), true
	}
	return fmt.Sprintf("%v", v), true
}

// keyValues extracts the key tuple of fields from r.
func keyValues(r types.Fielder, fields []string) keyTuple {
	t := keyTuple{vals: make([]string, len(fields))}
	var b []byte
	for i, f := range fields {
		s, present := keyPart(r.Field(f))
		t.vals[i] = s
		b = appendKeyPart(b, s, present)
	}
	t.key = GroupKey(b)
	return t
}
