package repository

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: total DESC, then submissionID ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the leaderboard
// from best to worst.

type node struct {
	id    string
	total int
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aTotal, aID) should appear before (bTotal, bID).
func less(aTotal int, aID string, bTotal int, bID string) bool {
	if aTotal != bTotal {
		return aTotal > bTotal
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, total int, prio uint64) *node {
	if n == nil {
		return &node{id: id, total: total, prio: prio, size: 1}
	}
	if less(total, id, n.total, n.id) {
		n.left = insert(n.left, id, total, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, total, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, total int) *node {
	if n == nil {
		return nil
	}
	if total == n.total && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, total)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, total)
		}
	} else if less(total, id, n.total, n.id) {
		n.left = deleteNode(n.left, id, total)
	} else {
		n.right = deleteNode(n.right, id, total)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, records map[string]model.Record, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, records, out)
	if len(*out) < limit {
		if rec, ok := records[n.id]; ok {
			*out = append(*out, entryOf(rec))
		}
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, records, out)
	}
}

// TreapStore keeps records in a map and their ordering in a size-augmented treap.
// totals counts records per total so dense ranks need no scan of the tree.
type TreapStore struct {
	mu     sync.RWMutex
	root   *node
	byID   map[string]model.Record
	totals map[int]int
	rng    *rand.Rand
}

var _ Store = (*TreapStore)(nil)

// NewTreapStore constructs an empty treap store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:   make(map[string]model.Record),
		totals: make(map[int]int),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save inserts or replaces a record in O(log n) expected time.
func (s *TreapStore) Save(_ context.Context, rec model.Record) error {
	if rec.SubmissionID == "" {
		metrics.RecordStoreError()
		return ErrInvalidID
	}

	s.mu.Lock()
	if old, ok := s.byID[rec.SubmissionID]; ok {
		s.root = deleteNode(s.root, old.SubmissionID, old.Result.Total)
		s.totals[old.Result.Total]--
		if s.totals[old.Result.Total] == 0 {
			delete(s.totals, old.Result.Total)
		}
	}
	s.byID[rec.SubmissionID] = rec
	s.totals[rec.Result.Total]++
	s.root = insert(s.root, rec.SubmissionID, rec.Result.Total, s.rng.Uint64())
	count := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateStoredRecords(count)
	return nil
}

// Get returns a stored record.
func (s *TreapStore) Get(_ context.Context, submissionID string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[submissionID]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	return rec, nil
}

// TopN returns the top n entries.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordStoreError()
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, s.byID, &out)
	assignRanksWithTies(out)
	return out, nil
}

// Standing returns the submission's entry with its dense rank and position.
func (s *TreapStore) Standing(_ context.Context, submissionID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[submissionID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	pos, err := s.position(rec)
	if err != nil {
		return Entry{}, err
	}
	// Totals live in [0,100], so this loop is bounded by the score scale.
	rank := 1
	for total := range s.totals {
		if total > rec.Result.Total {
			rank++
		}
	}
	e := entryOf(rec)
	e.Rank = rank
	e.Position = pos
	return e, nil
}

// position returns the 1-based position of rec in O(log n), counting every
// entry ordered before it. Callers hold mu.
func (s *TreapStore) position(rec model.Record) (int, error) {
	submissionID := rec.SubmissionID
	pos := 0
	for n := s.root; n != nil; {
		switch {
		case n.id == submissionID:
			return pos + nsize(n.left) + 1, nil
		case less(rec.Result.Total, submissionID, n.total, n.id):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0, ErrNotFound
}

// Count returns the number of stored records.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Close is a no-op; the store lives in memory.
func (s *TreapStore) Close() error { return nil }
