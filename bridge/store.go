package bridge

import (
	"sync"

	"github.com/tbeswick/wfsbridge/route"
)

// MemoryStore is a ParamStore backed by maps. The controller UI brings
// its own store; this one serves headless runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	floats   map[paramKey]float32
	ints     map[paramKey]int32
	names    map[int32]string
	channels int32
}

type paramKey struct {
	id route.ParamID
	ch int32
}

// NewMemoryStore creates a store for the given channel count.
func NewMemoryStore(channels int32) *MemoryStore {
	return &MemoryStore{
		floats:   make(map[paramKey]float32),
		ints:     make(map[paramKey]int32),
		names:    make(map[int32]string),
		channels: channels,
	}
}

func (s *MemoryStore) FloatParam(id route.ParamID, ch int32) float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.floats[paramKey{id, ch}]
}

func (s *MemoryStore) SetFloatParam(id route.ParamID, ch int32, v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floats[paramKey{id, ch}] = v
}

func (s *MemoryStore) IntParam(id route.ParamID, ch int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ints[paramKey{id, ch}]
}

func (s *MemoryStore) SetIntParam(id route.ParamID, ch int32, v int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ints[paramKey{id, ch}] = v
}

func (s *MemoryStore) ChannelName(ch int32) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names[ch]
}

func (s *MemoryStore) SetChannelName(ch int32, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[ch] = name
}

func (s *MemoryStore) ChannelCount() int32 {
	return s.channels
}
