package models

import "sort"

// Ref is the lightweight wire form of a model reference.
type Ref struct {
	ID      string `json:"id" cbor:"id"`
	Type    string `json:"type,omitempty" cbor:"type,omitempty"`
	Subtype string `json:"subtype,omitempty" cbor:"subtype,omitempty"`
}

func (r Ref) native() map[string]any {
	out := map[string]any{"id": r.ID}
	if r.Type != "" {
		out["type"] = r.Type
	}
	if r.Subtype != "" {
		out["subtype"] = r.Subtype
	}
	return out
}

// refFromMap recognizes the three ref shapes: {id}, {id, type} and
// {id, subtype, type}. Anything else is an ordinary map.
func refFromMap(m map[string]any) (Ref, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	switch len(keys) {
	case 1:
		if keys[0] != "id" {
			return Ref{}, false
		}
	case 2:
		if keys[0] != "id" || keys[1] != "type" {
			return Ref{}, false
		}
	case 3:
		if keys[0] != "id" || keys[1] != "subtype" || keys[2] != "type" {
			return Ref{}, false
		}
	default:
		return Ref{}, false
	}

	var r Ref
	var ok bool
	if r.ID, ok = m["id"].(string); !ok {
		return Ref{}, false
	}
	if t, present := m["type"]; present {
		if r.Type, ok = t.(string); !ok {
			return Ref{}, false
		}
	}
	if st, present := m["subtype"]; present {
		if r.Subtype, ok = st.(string); !ok {
			return Ref{}, false
		}
	}
	return r, true
}

// RefSet is an insertion-ordered set of models keyed by id.
type RefSet struct {
	order []string
	byID  map[string]*Model
}

func NewRefSet() *RefSet {
	return &RefSet{byID: make(map[string]*Model)}
}

func (s *RefSet) Add(m *Model) bool {
	if _, ok := s.byID[m.id]; ok {
		return false
	}
	s.byID[m.id] = m
	s.order = append(s.order, m.id)
	return true
}

func (s *RefSet) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *RefSet) Get(id string) (*Model, bool) {
	m, ok := s.byID[id]
	return m, ok
}

func (s *RefSet) Delete(id string) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *RefSet) Len() int {
	return len(s.order)
}

// Models returns the members in insertion order.
func (s *RefSet) Models() []*Model {
	out := make([]*Model, len(s.order))
	for i, id := range s.order {
		out[i] = s.byID[id]
	}
	return out
}

// IDs returns the member ids in insertion order.
func (s *RefSet) IDs() []string {
	return append([]string(nil), s.order...)
}
