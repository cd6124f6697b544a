package orders

import "sync"

// dealMap resolves broker identifiers back to platform order IDs. An
// order is keyed first by the provisional deal reference returned on
// submission, then additionally by the deal ID once confirmed. Both keys
// are dropped together when the order reaches a terminal state.
type dealMap struct {
	mu     sync.RWMutex
	byRef  map[string]string // dealReference -> orderID
	byDeal map[string]string // dealID -> orderID
}

func newDealMap() *dealMap {
	return &dealMap{
		byRef:  make(map[string]string),
		byDeal: make(map[string]string),
	}
}

func (m *dealMap) putRef(ref, orderID string) {
	m.mu.Lock()
	m.byRef[ref] = orderID
	m.mu.Unlock()
}

// confirm attaches the broker deal ID to the order already keyed by ref.
// The ref key stays valid; some push updates still carry only the ref.
func (m *dealMap) confirm(ref, dealID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orderID, ok := m.byRef[ref]
	if !ok {
		return
	}
	if dealID != "" {
		m.byDeal[dealID] = orderID
	}
}

// resolve finds the platform order for a push update, trying the deal ID
// first and falling back to the reference.
func (m *dealMap) resolve(dealID, ref string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if dealID != "" {
		if id, ok := m.byDeal[dealID]; ok {
			return id, true
		}
	}
	if ref != "" {
		if id, ok := m.byRef[ref]; ok {
			return id, true
		}
	}
	return "", false
}

// drop removes every key pointing at the order.
func (m *dealMap) drop(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.byRef {
		if v == orderID {
			delete(m.byRef, k)
		}
	}
	for k, v := range m.byDeal {
		if v == orderID {
			delete(m.byDeal, k)
		}
	}
}

func (m *dealMap) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byRef) + len(m.byDeal)
}
