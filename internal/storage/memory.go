package storage

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// MemoryArchive keeps the snapshot in process memory. It backs tests
// and the in-memory-only fallback used when no durable backend is
// reachable. The payload still round-trips through JSON so it behaves
// like the durable backends.
type MemoryArchive struct {
	mu      sync.Mutex
	payload []byte
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

func (a *MemoryArchive) Load(ctx context.Context) *Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.payload == nil {
		return &Snapshot{}
	}
	return decodeSnapshot(a.payload)
}

func (a *MemoryArchive) Save(ctx context.Context, snap *Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("storage: encode snapshot: %v", err)
		return
	}
	a.mu.Lock()
	a.payload = payload
	a.mu.Unlock()
}
