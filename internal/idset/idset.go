// Package idset provides sorted sets of 32-bit identifiers.
//
// A Set wraps a Roaring bitmap. EQ ids, column ids, term ids and domain ids are
// all dense uint32 values, which is the workload Roaring compresses best.
// Sets iterate in ascending order, so the textual form returned by Key is a
// canonical representation that can be used as a map key for deduplication.
package idset

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrMalformed is returned when a textual id list cannot be parsed.
var ErrMalformed = errors.New("idset: malformed id list")

// Set is a sorted set of uint32 ids.
// A Set is not safe for concurrent mutation; concurrent reads are safe.
type Set struct {
	rb *roaring.Bitmap
}

// New creates a set holding the given ids.
func New(ids ...uint32) *Set {
	return &Set{rb: roaring.BitmapOf(ids...)}
}

// FromSlice creates a set from a slice of ids.
func FromSlice(ids []uint32) *Set {
	rb := roaring.New()
	rb.AddMany(ids)
	return &Set{rb: rb}
}

// Add inserts id.
func (s *Set) Add(id uint32) {
	s.rb.Add(id)
}

// AddMany inserts every id in ids.
func (s *Set) AddMany(ids []uint32) {
	s.rb.AddMany(ids)
}

// Remove deletes id.
func (s *Set) Remove(id uint32) {
	s.rb.Remove(id)
}

// Contains reports whether id is a member.
func (s *Set) Contains(id uint32) bool {
	return s.rb.Contains(id)
}

// Len returns the number of members.
func (s *Set) Len() int {
	return int(s.rb.GetCardinality())
}

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// Min returns the smallest member. The set must not be empty.
func (s *Set) Min() uint32 {
	return s.rb.Minimum()
}

// Max returns the largest member. The set must not be empty.
func (s *Set) Max() uint32 {
	return s.rb.Maximum()
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	return &Set{rb: s.rb.Clone()}
}

// Or adds every member of other to s.
func (s *Set) Or(other *Set) {
	s.rb.Or(other.rb)
}

// AndNot removes every member of other from s.
func (s *Set) AndNot(other *Set) {
	s.rb.AndNot(other.rb)
}

// Intersects reports whether s and other share at least one member.
func (s *Set) Intersects(other *Set) bool {
	return s.rb.Intersects(other.rb)
}

// IntersectionLen returns |s ∩ other| without materializing the intersection.
func (s *Set) IntersectionLen(other *Set) int {
	return int(s.rb.AndCardinality(other.rb))
}

// UnionLen returns |s ∪ other| without materializing the union.
func (s *Set) UnionLen(other *Set) int {
	return int(s.rb.OrCardinality(other.rb))
}

// Intersection returns a new set holding s ∩ other.
func (s *Set) Intersection(other *Set) *Set {
	return &Set{rb: roaring.And(s.rb, other.rb)}
}

// Union returns a new set holding s ∪ other.
func Union(sets ...*Set) *Set {
	bms := make([]*roaring.Bitmap, 0, len(sets))
	for _, s := range sets {
		if s != nil {
			bms = append(bms, s.rb)
		}
	}
	if len(bms) == 0 {
		return New()
	}
	return &Set{rb: roaring.FastOr(bms...)}
}

// Equal reports whether s and other have exactly the same members.
func (s *Set) Equal(other *Set) bool {
	return s.rb.Equals(other.rb)
}

// ToSlice returns the members in ascending order.
func (s *Set) ToSlice() []uint32 {
	return s.rb.ToArray()
}

// All iterates the members in ascending order.
func (s *Set) All() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// Key returns the canonical comma-separated form of the set.
// Two sets have the same key iff they are Equal.
func (s *Set) Key() string {
	var sb strings.Builder
	first := true
	for id := range s.All() {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (s *Set) String() string {
	return "[" + s.Key() + "]"
}

// Parse reads a comma-separated id list as produced by Key.
// The empty string yields an empty set.
func Parse(text string) (*Set, error) {
	s := New()
	if text == "" {
		return s, nil
	}
	for _, field := range strings.Split(text, ",") {
		v, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, field)
		}
		s.rb.Add(uint32(v))
	}
	return s, nil
}
