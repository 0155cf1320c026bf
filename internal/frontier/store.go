package frontier

import (
	"sync"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
)

// Store holds pending requests, partitioned by origin. Pop returns the
// globally highest priority; PopOrigin restricts to one origin. Ties go to
// the earliest push.
type Store interface {
	Push(req *crawl.Request) error
	Pop() (*crawl.Request, bool)
	PopOrigin(origin string) (*crawl.Request, bool)
	Len() int
	LenOrigin(origin string) int
	Origins() []string
	Close() error
}

type MemoryStore struct {
	mu         sync.Mutex
	partitions map[string]*PriorityQueue[*crawl.Request]
	seq        uint64
	size       int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]*PriorityQueue[*crawl.Request])}
}

func (m *MemoryStore) Push(req *crawl.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.partitions[req.OriginKey()]
	if !ok {
		q = NewPriorityQueue[*crawl.Request]()
		m.partitions[req.OriginKey()] = q
	}
	m.seq++
	q.Push(req, req.Priority(), m.seq)
	m.size++
	return nil
}

func (m *MemoryStore) Pop() (*crawl.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best string
	var bestEntry entry[*crawl.Request]
	found := false
	for origin, q := range m.partitions {
		e, ok := q.peek()
		if !ok {
			continue
		}
		if !found || e.priority > bestEntry.priority ||
			(e.priority == bestEntry.priority && e.seq < bestEntry.seq) {
			best, bestEntry, found = origin, e, true
		}
	}
	if !found {
		return nil, false
	}
	return m.popLocked(best)
}

func (m *MemoryStore) PopOrigin(origin string) (*crawl.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popLocked(origin)
}

func (m *MemoryStore) popLocked(origin string) (*crawl.Request, bool) {
	q, ok := m.partitions[origin]
	if !ok {
		return nil, false
	}
	req, ok := q.Pop()
	if !ok {
		return nil, false
	}
	if q.Len() == 0 {
		delete(m.partitions, origin)
	}
	m.size--
	return req, true
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *MemoryStore) LenOrigin(origin string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.partitions[origin]; ok {
		return q.Len()
	}
	return 0
}

func (m *MemoryStore) Origins() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.partitions))
	for origin := range m.partitions {
		out = append(out, origin)
	}
	return out
}

func (m *MemoryStore) Close() error {
	return nil
}
