package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrDeliveryFailed is returned by the memory notifier when failure is armed.
var ErrDeliveryFailed = errors.New("delivery failed")

// Delivery records one notification accepted by the memory notifier.
type Delivery struct {
	Address string
	Kind    TemplateKind
	Data    Data
}

// MemoryNotifier records deliveries instead of sending them. It serves tests
// and the development echo channel when no SMTP host is configured.
type MemoryNotifier struct {
	mu         sync.Mutex
	deliveries []Delivery
	failing    bool
}

// NewMemory constructs an empty memory notifier.
func NewMemory() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Notify(_ context.Context, address string, kind TemplateKind, data Data) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failing {
		return ErrDeliveryFailed
	}
	cp := make(Data, len(data))
	for k, v := range data {
		cp[k] = v
	}
	n.deliveries = append(n.deliveries, Delivery{Address: address, Kind: kind, Data: cp})
	return nil
}

// Deliveries returns a snapshot of everything accepted so far.
func (n *MemoryNotifier) Deliveries() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Delivery{}, n.deliveries...)
}

// Last returns the most recent delivery, or false when none happened.
func (n *MemoryNotifier) Last() (Delivery, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.deliveries) == 0 {
		return Delivery{}, false
	}
	return n.deliveries[len(n.deliveries)-1], true
}

// SetFailing arms or disarms delivery failure for subsequent Notify calls.
func (n *MemoryNotifier) SetFailing(failing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing = failing
}
