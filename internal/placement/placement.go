// Package placement implements a decoded, read-only CRUSH-style placement
// map consulted by virtual devices to select a target set for a given
// (pool, object-id) pair (§4.5).
package placement

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// BucketKind distinguishes a leaf (a concrete target) from an interior node
// that selects among its children.
type BucketKind uint8

const (
	BucketLeaf BucketKind = iota
	BucketStraw
)

// Bucket is one node of the decoded placement tree. Leaves carry a target
// ID; interior straw buckets weight-select among Children.
type Bucket struct {
	ID       int32
	Kind     BucketKind
	Weight   uint32
	Children []*Bucket
}

// Rule names which bucket a pool's selections begin from and how many
// replicas to choose.
type Rule struct {
	Pool     string
	Root     int32
	Replicas int
}

// Map is the fully decoded tree plus rule list. It is built once at load
// (or reload) time and never mutated afterward; Select is a pure function
// of the map contents and its arguments, so concurrent reads need no
// locking.
type Map struct {
	buckets map[int32]*Bucket
	rules   map[string]Rule
}

// Decode parses a serialized placement map. The format is a small
// self-contained binary layout (not AoE wire format): a rule count,
// followed by [pool-name-length, pool-name, root-id, replicas] rule
// records, followed by a bucket count and [id, kind, weight, nchildren,
// child-ids...] bucket records.
func Decode(buf []byte) (*Map, error) {
	m := &Map{buckets: map[int32]*Bucket{}, rules: map[string]Rule{}}
	r := &reader{buf: buf}

	nRules, err := r.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nRules; i++ {
		nameLen, err := r.u16()
		if err != nil {
			return nil, err
		}
		name, err := r.bytes(int(nameLen))
		if err != nil {
			return nil, err
		}
		root, err := r.i32()
		if err != nil {
			return nil, err
		}
		replicas, err := r.u32()
		if err != nil {
			return nil, err
		}
		m.rules[string(name)] = Rule{Pool: string(name), Root: root, Replicas: int(replicas)}
	}

	nBuckets, err := r.u32()
	if err != nil {
		return nil, err
	}
	raw := make([]*Bucket, 0, nBuckets)
	childIDs := make([][]int32, nBuckets)
	for i := uint32(0); i < nBuckets; i++ {
		id, err := r.i32()
		if err != nil {
			return nil, err
		}
		kind, err := r.u8()
		if err != nil {
			return nil, err
		}
		weight, err := r.u32()
		if err != nil {
			return nil, err
		}
		nChildren, err := r.u32()
		if err != nil {
			return nil, err
		}
		ids := make([]int32, nChildren)
		for j := range ids {
			ids[j], err = r.i32()
			if err != nil {
				return nil, err
			}
		}
		b := &Bucket{ID: id, Kind: BucketKind(kind), Weight: weight}
		raw = append(raw, b)
		childIDs[i] = ids
		m.buckets[id] = b
	}
	for i, b := range raw {
		for _, cid := range childIDs[i] {
			child, ok := m.buckets[cid]
			if !ok {
				return nil, fmt.Errorf("placement: bucket %d references unknown child %d", b.ID, cid)
			}
			b.Children = append(b.Children, child)
		}
	}
	return m, nil
}

// Fallback builds the mandatory single-bucket, single-rule map used when no
// placement-map file is configured: every object maps to the one local
// target.
func Fallback(localTargetID int32) *Map {
	leaf := &Bucket{ID: localTargetID, Kind: BucketLeaf, Weight: 1}
	root := &Bucket{ID: 0, Kind: BucketStraw, Weight: 1, Children: []*Bucket{leaf}}
	return &Map{
		buckets: map[int32]*Bucket{root.ID: root, leaf.ID: leaf},
		rules:   map[string]Rule{"": {Pool: "", Root: root.ID, Replicas: 1}},
	}
}

// Select deterministically chooses up to rule.Replicas leaf target IDs for
// the given pool and object ID, by descending straw buckets using a hash of
// (objectID, bucket ID, attempt) to pick among weighted children.
func (m *Map) Select(pool string, objectID uint64) ([]int32, error) {
	rule, ok := m.rules[pool]
	if !ok {
		return nil, fmt.Errorf("placement: no rule for pool %q", pool)
	}
	root, ok := m.buckets[rule.Root]
	if !ok {
		return nil, fmt.Errorf("placement: rule %q root %d not found", pool, rule.Root)
	}

	seen := map[int32]bool{}
	var out []int32
	for attempt := 0; len(out) < rule.Replicas && attempt < rule.Replicas*4; attempt++ {
		leaf := descend(root, objectID, uint32(attempt))
		if leaf == nil || seen[leaf.ID] {
			continue
		}
		seen[leaf.ID] = true
		out = append(out, leaf.ID)
	}
	return out, nil
}

// descend walks from b to a leaf, picking the highest-scoring child at each
// straw bucket using a straw2-style hash score.
func descend(b *Bucket, objectID uint64, attempt uint32) *Bucket {
	for b.Kind != BucketLeaf {
		if len(b.Children) == 0 {
			return nil
		}
		var best *Bucket
		var bestScore uint64
		for _, c := range b.Children {
			s := strawScore(objectID, c.ID, attempt, c.Weight)
			if best == nil || s > bestScore {
				best, bestScore = c, s
			}
		}
		b = best
	}
	return b
}

func strawScore(objectID uint64, bucketID int32, attempt uint32, weight uint32) uint64 {
	h := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], objectID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(bucketID))
	binary.LittleEndian.PutUint32(buf[12:16], attempt)
	h.Write(buf[:])
	sum := h.Sum64()
	if weight == 0 {
		return 0
	}
	return sum % (uint64(weight) + 1) * 1000003 + sum>>32
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) need(n int) error {
	if len(r.buf)-r.off < n {
		return fmt.Errorf("placement: truncated map at offset %d, need %d bytes", r.off, n)
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v, nil
}
