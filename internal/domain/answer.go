package domain

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Answer is either a single option index (possibly unanswered) or a set of option
// indices. Use NoAnswer, SingleAnswer and SetAnswer to build one so the shape always
// matches the question type. The zero value is the unanswered scalar.
type Answer struct {
	multi    bool
	selected bool
	index    int
	set      []int
}

// NoAnswer is the unanswered scalar answer.
func NoAnswer() Answer {
	return Answer{}
}

// SingleAnswer selects exactly one option.
func SingleAnswer(index int) Answer {
	return Answer{selected: true, index: index}
}

// SetAnswer builds a set answer; duplicates are collapsed and order is irrelevant.
func SetAnswer(indices ...int) Answer {
	seen := make(map[int]struct{}, len(indices))
	set := make([]int, 0, len(indices))
	for _, i := range indices {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		set = append(set, i)
	}
	sort.Ints(set)
	return Answer{multi: true, set: set}
}

// IsSet reports whether the answer is a set of indices.
func (a Answer) IsSet() bool {
	return a.multi
}

// Index returns the scalar index, false when unanswered or when the answer is a set.
func (a Answer) Index() (int, bool) {
	if a.multi || !a.selected {
		return 0, false
	}
	return a.index, true
}

// Indices returns a sorted copy of the set members.
func (a Answer) Indices() []int {
	out := make([]int, len(a.set))
	copy(out, a.set)
	return out
}

// Answered reports whether anything is selected.
func (a Answer) Answered() bool {
	if a.multi {
		return len(a.set) > 0
	}
	return a.selected
}

// Contains reports whether index is selected.
func (a Answer) Contains(index int) bool {
	if !a.multi {
		return a.selected && a.index == index
	}
	i := sort.SearchInts(a.set, index)
	return i < len(a.set) && a.set[i] == index
}

// Toggle flips membership of index in a set answer. Scalar answers are returned unchanged.
func (a Answer) Toggle(index int) Answer {
	if !a.multi {
		return a
	}
	if a.Contains(index) {
		next := make([]int, 0, len(a.set))
		for _, i := range a.set {
			if i != index {
				next = append(next, i)
			}
		}
		return Answer{multi: true, set: next}
	}
	return SetAnswer(append(a.Indices(), index)...)
}

// Equal compares scalars by index and sets by membership.
func (a Answer) Equal(b Answer) bool {
	if a.multi != b.multi {
		return false
	}
	if !a.multi {
		ai, aok := a.Index()
		bi, bok := b.Index()
		return aok && bok && ai == bi
	}
	if len(a.set) != len(b.set) {
		return false
	}
	for i := range a.set {
		if a.set[i] != b.set[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes null for an unanswered scalar, a number for a scalar and an
// array for a set.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.multi {
		return json.Marshal(a.Indices())
	}
	if !a.selected {
		return []byte("null"), nil
	}
	return json.Marshal(a.index)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = NoAnswer()
		return nil
	case len(data) > 0 && data[0] == '[':
		var indices []int
		if err := json.Unmarshal(data, &indices); err != nil {
			return err
		}
		*a = SetAnswer(indices...)
		return nil
	default:
		var index int
		if err := json.Unmarshal(data, &index); err != nil {
			return err
		}
		*a = SingleAnswer(index)
		return nil
	}
}
