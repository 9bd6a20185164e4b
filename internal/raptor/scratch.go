package raptor

import (
	"context"

	"github.com/vincbro/blaise/internal/gtime"
)

// MaxRounds is the hard cap on boardings a single query may explore. Scratch
// buffers are sized for it; Options.MaxRounds clamps to it.
const MaxRounds = 15

type labelKind uint8

const (
	labelNone labelKind = iota
	labelTransit
	labelWalk
)

// label is one boarding-table entry: how a stop was reached in a given
// round, with the leg endpoints in travel direction so reconstruction never
// re-derives times.
type label struct {
	kind labelKind
	// tripIx is set for transit labels.
	tripIx uint32
	// otherStopIx is the other end of the leg: the boarding stop in
	// forward searches, the alighting stop in reverse ones, the walk peer
	// for footpaths.
	otherStopIx uint32
	// otherPos / selfPos are positions within the trip for transit labels.
	otherPos uint32
	selfPos  uint32
	depart   gtime.Time
	arrive   gtime.Time
}

// scratch is the pre-allocated per-query state. Every buffer is sized for
// the repository the pool was built against; nothing on the query hot path
// allocates.
type scratch struct {
	best         []gtime.Time   // best label per stop across all rounds
	roundArrival [][]gtime.Time // [round][stop]
	boarding     [][]label      // [round][stop]
	marked       []bool
	markedList   []uint32
	queuePos     []uint32 // per raptor route: scan start position
	queueList    []uint32
}

const noPosition = ^uint32(0)

func newScratch(stopCount, routeCount int) *scratch {
	s := &scratch{
		best:         make([]gtime.Time, stopCount),
		roundArrival: make([][]gtime.Time, MaxRounds+1),
		boarding:     make([][]label, MaxRounds+1),
		marked:       make([]bool, stopCount),
		markedList:   make([]uint32, 0, stopCount),
		queuePos:     make([]uint32, routeCount),
		queueList:    make([]uint32, 0, routeCount),
	}
	for r := range s.roundArrival {
		s.roundArrival[r] = make([]gtime.Time, stopCount)
		s.boarding[r] = make([]label, stopCount)
	}
	return s
}

// reset prepares the scratch for a new query. unreached is the label
// sentinel: gtime.None for forward searches, gtime.NegInf for reverse.
func (s *scratch) reset(unreached gtime.Time) {
	for i := range s.best {
		s.best[i] = unreached
	}
	for r := range s.roundArrival {
		row := s.roundArrival[r]
		for i := range row {
			row[i] = unreached
		}
		labels := s.boarding[r]
		for i := range labels {
			labels[i] = label{}
		}
	}
	for i := range s.marked {
		s.marked[i] = false
	}
	s.markedList = s.markedList[:0]
	for i := range s.queuePos {
		s.queuePos[i] = noPosition
	}
	s.queueList = s.queueList[:0]
}

func (s *scratch) mark(stopIx uint32) {
	if !s.marked[stopIx] {
		s.marked[stopIx] = true
		s.markedList = append(s.markedList, stopIx)
	}
}

func (s *scratch) clearMarks() {
	for _, ix := range s.markedList {
		s.marked[ix] = false
	}
	s.markedList = s.markedList[:0]
}

// Pool is the fixed-size ring of scratch buffers. Its capacity is the
// number of concurrently servable queries; acquiring a slot is the only
// blocking point inside the engine.
type Pool struct {
	slots chan *scratch
}

// NewPool pre-allocates count scratch buffers sized for a repository with
// the given table sizes.
func NewPool(count, stopCount, routeCount int) *Pool {
	if count < 1 {
		count = 1
	}
	p := &Pool{slots: make(chan *scratch, count)}
	for i := 0; i < count; i++ {
		p.slots <- newScratch(stopCount, routeCount)
	}
	return p
}

// acquire blocks until a slot frees up or the context is done.
func (p *Pool) acquire(ctx context.Context) (*scratch, error) {
	select {
	case s := <-p.slots:
		return s, nil
	default:
	}
	select {
	case s := <-p.slots:
		return s, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// tryAcquire never blocks.
func (p *Pool) tryAcquire() (*scratch, error) {
	select {
	case s := <-p.slots:
		return s, nil
	default:
		return nil, ErrPoolExhausted
	}
}

func (p *Pool) release(s *scratch) {
	p.slots <- s
}
