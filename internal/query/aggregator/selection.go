package aggregator

// Selection holds the selected node ids per hierarchy level. Each level keeps
// an ordered set of ids. Every mutation at a level clears all deeper levels,
// so a selection below an unselected ancestor can never exist.
//
// The zero value is an empty selection. Selection is not safe for concurrent
// mutation; hand out copies with Snapshot.
type Selection struct {
	levels [levelCount][]string
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{}
}

// Select replaces the selected ids at level l and clears deeper levels.
// Duplicate ids are dropped, keeping the first occurrence.
func (s *Selection) Select(l Level, ids ...string) {
	if !l.Valid() {
		return
	}
	set := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		set = append(set, id)
	}
	if len(set) == 0 {
		set = nil
	}
	s.levels[l] = set
	s.clearBelow(l)
}

// Toggle adds id at level l when absent, removes it when present, and clears
// deeper levels either way.
func (s *Selection) Toggle(l Level, id string) {
	if !l.Valid() {
		return
	}
	cur := s.levels[l]
	next := make([]string, 0, len(cur)+1)
	found := false
	for _, v := range cur {
		if v == id {
			found = true
			continue
		}
		next = append(next, v)
	}
	if !found {
		next = append(next, id)
	}
	if len(next) == 0 {
		next = nil
	}
	s.levels[l] = next
	s.clearBelow(l)
}

// Clear empties level l and every deeper level.
func (s *Selection) Clear(l Level) {
	if !l.Valid() {
		return
	}
	s.levels[l] = nil
	s.clearBelow(l)
}

// Reset empties every level.
func (s *Selection) Reset() {
	s.Clear(LevelAccount)
}

// Selected returns a copy of the ids selected at level l.
func (s *Selection) Selected(l Level) []string {
	if s == nil || !l.Valid() {
		return nil
	}
	return append([]string(nil), s.levels[l]...)
}

// Contains reports whether id is selected at level l.
func (s *Selection) Contains(l Level, id string) bool {
	if s == nil || !l.Valid() {
		return false
	}
	for _, v := range s.levels[l] {
		if v == id {
			return true
		}
	}
	return false
}

// Snapshot returns an independent copy of the selection.
func (s *Selection) Snapshot() *Selection {
	cp := &Selection{}
	if s == nil {
		return cp
	}
	for i, ids := range s.levels {
		if len(ids) > 0 {
			cp.levels[i] = append([]string(nil), ids...)
		}
	}
	return cp
}

// ToMap renders the non-empty levels keyed by level name.
func (s *Selection) ToMap() map[string][]string {
	out := make(map[string][]string)
	if s == nil {
		return out
	}
	for i, ids := range s.levels {
		if len(ids) > 0 {
			out[Level(i).String()] = append([]string(nil), ids...)
		}
	}
	return out
}

// SelectionFromMap builds a selection from level names to ids. Levels are
// applied root first, so the result always satisfies the clearing invariant
// of the levels it was given.
func SelectionFromMap(m map[string][]string) (*Selection, error) {
	for name := range m {
		if _, err := ParseLevel(name); err != nil {
			return nil, err
		}
	}
	s := NewSelection()
	for _, l := range Levels() {
		if ids := m[l.String()]; len(ids) > 0 {
			s.Select(l, ids...)
		}
	}
	return s, nil
}

func (s *Selection) clearBelow(l Level) {
	for i := int(l) + 1; i < levelCount; i++ {
		s.levels[i] = nil
	}
}
