package frame

import (
	"sync"

	"github.com/tphakala/fragring/internal/logger"
)

// MetadataHandler owns metadata lifetimes. The stream calls it; the ring
// buffer never does.
type MetadataHandler interface {
	// Create allocates a node with size bytes of data and appends it to list.
	Create(list *List, size int) (*Metadata, error)
	// Destroy releases a node. dropped is true when no reader consumed it.
	Destroy(node *Metadata, dropped bool)
	// Propagate appends to dst a copy of every node in src with delayUS
	// added to its delay.
	Propagate(src, dst *List, delayUS int64)
}

// HandlerStats counts BasicHandler activity.
type HandlerStats struct {
	Created    uint64
	Destroyed  uint64
	Dropped    uint64
	Propagated uint64
	Live       int64
}

// BasicHandler allocates metadata from the heap. It is safe for concurrent use.
type BasicHandler struct {
	mu     sync.Mutex
	nextID uint64
	stats  HandlerStats
	log    logger.Logger
}

// NewBasicHandler returns a heap-backed handler
func NewBasicHandler() *BasicHandler {
	return &BasicHandler{log: GetLogger()}
}

// Create implements MetadataHandler
func (h *BasicHandler) Create(list *List, size int) (*Metadata, error) {
	if size < 0 {
		return nil, invalidArgument("frame: negative metadata size %d", size)
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.stats.Created++
	h.stats.Live++
	h.mu.Unlock()

	m := &Metadata{ID: id, Data: make([]byte, size)}
	if list != nil {
		list.Add(m)
	}
	return m, nil
}

// Destroy implements MetadataHandler
func (h *BasicHandler) Destroy(node *Metadata, dropped bool) {
	if node == nil {
		return
	}

	h.mu.Lock()
	h.stats.Destroyed++
	if dropped {
		h.stats.Dropped++
	}
	h.stats.Live--
	h.mu.Unlock()

	if dropped {
		h.log.Debug("metadata dropped unread",
			logger.Uint64("id", node.ID),
			logger.Int("kind", int(node.Kind)))
	}
}

// Propagate implements MetadataHandler
func (h *BasicHandler) Propagate(src, dst *List, delayUS int64) {
	if src == nil || dst == nil {
		return
	}
	for _, m := range src.Nodes() {
		cp := *m
		cp.Data = append([]byte(nil), m.Data...)
		cp.DelayUS += delayUS
		dst.Add(&cp)
	}

	h.mu.Lock()
	h.stats.Propagated += uint64(src.Len())
	h.mu.Unlock()
}

// Stats returns a snapshot of handler counters
func (h *BasicHandler) Stats() HandlerStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
