package admingrid

// SelectionSet holds the selected row identities of one grid. Membership is
// by identity key, so a selection made on one page survives navigation to
// another. It is not safe for concurrent use on its own.
type SelectionSet struct {
	order []string
	ids   map[string]RowIdentity
}

// NewSelectionSet creates an empty selection.
func NewSelectionSet() *SelectionSet {
	return &SelectionSet{ids: map[string]RowIdentity{}}
}

// Select adds identities and returns how many were new.
func (s *SelectionSet) Select(ids ...RowIdentity) int {
	added := 0
	for _, id := range ids {
		if _, ok := s.ids[id.Key]; ok {
			continue
		}
		s.ids[id.Key] = id
		s.order = append(s.order, id.Key)
		added++
	}
	return added
}

// Deselect removes identities and returns how many were present.
func (s *SelectionSet) Deselect(ids ...RowIdentity) int {
	removed := 0
	for _, id := range ids {
		if _, ok := s.ids[id.Key]; !ok {
			continue
		}
		delete(s.ids, id.Key)
		removed++
	}
	if removed > 0 {
		kept := s.order[:0]
		for _, k := range s.order {
			if _, ok := s.ids[k]; ok {
				kept = append(kept, k)
			}
		}
		s.order = kept
	}
	return removed
}

// Has reports whether id is selected.
func (s *SelectionSet) Has(id RowIdentity) bool {
	_, ok := s.ids[id.Key]
	return ok
}

// Len returns |SelectionSet|.
func (s *SelectionSet) Len() int { return len(s.ids) }

// Empty reports whether nothing is selected.
func (s *SelectionSet) Empty() bool { return len(s.ids) == 0 }

// IDs returns the selected identities in selection order.
func (s *SelectionSet) IDs() []RowIdentity {
	out := make([]RowIdentity, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.ids[k])
	}
	return out
}

// Clear empties the selection.
func (s *SelectionSet) Clear() {
	s.order = nil
	s.ids = map[string]RowIdentity{}
}
