package feed

import (
	"encoding/json"
	"strconv"
)

type idKind uint8

const (
	idNone idKind = iota
	idString
	idInt
)

// ItemID identifies an item across requests. String and integer ids live in
// separate key spaces: StringID("7") and IntID(7) are different ids.
type ItemID struct {
	kind idKind
	s    string
	n    int64
}

// StringID returns an ItemID for a string identifier.
func StringID(s string) ItemID {
	return ItemID{kind: idString, s: s}
}

// IntID returns an ItemID for an integer identifier.
func IntID(n int64) ItemID {
	return ItemID{kind: idInt, n: n}
}

// IsZero reports whether the id was never set.
func (id ItemID) IsZero() bool {
	return id.kind == idNone
}

func (id ItemID) String() string {
	switch id.kind {
	case idString:
		return id.s
	case idInt:
		return strconv.FormatInt(id.n, 10)
	default:
		return ""
	}
}

// MarshalJSON writes integer ids as numbers and string ids as strings.
func (id ItemID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idInt:
		return []byte(strconv.FormatInt(id.n, 10)), nil
	case idString:
		return json.Marshal(id.s)
	default:
		return []byte("null"), nil
	}
}

// SeenSet records the ids already delivered to the consumer during one
// stream. It never evicts; a stream's lifetime bounds its size.
type SeenSet struct {
	ids map[ItemID]struct{}
}

// NewSeenSet creates an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[ItemID]struct{})}
}

// Contains reports whether id has been added.
func (s *SeenSet) Contains(id ItemID) bool {
	_, ok := s.ids[id]
	return ok
}

// Add inserts id.
func (s *SeenSet) Add(id ItemID) {
	s.ids[id] = struct{}{}
}

// Len returns the number of ids in the set.
func (s *SeenSet) Len() int {
	return len(s.ids)
}

// Reset empties the set.
func (s *SeenSet) Reset() {
	clear(s.ids)
}

// Fresh returns the items whose ids are not in the set, in their original
// order. An id repeated within items is kept only at its first position.
// The set itself is not modified.
func (s *SeenSet) Fresh(items []Item) []Item {
	fresh := make([]Item, 0, len(items))
	inBatch := make(map[ItemID]struct{}, len(items))
	for _, item := range items {
		if s.Contains(item.ID) {
			continue
		}
		if _, dup := inBatch[item.ID]; dup {
			continue
		}
		inBatch[item.ID] = struct{}{}
		fresh = append(fresh, item)
	}
	return fresh
}
