package connection

// Scope selects callback collections for RemoveCallback.
type Scope uint8

const (
	ScopeMessage Scope = 1 << iota
	ScopeConnect
	ScopeDisconnect

	ScopeAll = ScopeMessage | ScopeConnect | ScopeDisconnect
)

// ConnectHandler runs after a connection opens.
type ConnectHandler func()

// DisconnectHandler runs after a connection closes.
type DisconnectHandler func(CloseEvent)

// MessageHandler runs for every inbound frame.
type MessageHandler func(Message)

// Subscription identifies one registered callback.
type Subscription struct {
	id     uint64
	client *Client
}

// Unsubscribe removes the callback from every collection.
func (s Subscription) Unsubscribe() {
	if s.client != nil {
		s.client.RemoveCallback(s, ScopeAll)
	}
}

type entry[F any] struct {
	id uint64
	fn F
}

// handlers is an ordered callback collection. Callers hold the client mutex.
type handlers[F any] struct {
	entries []entry[F]
}

func (h *handlers[F]) add(id uint64, fn F) {
	h.entries = append(h.entries, entry[F]{id: id, fn: fn})
}

func (h *handlers[F]) remove(id uint64) bool {
	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (h *handlers[F]) snapshot() []F {
	out := make([]F, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.fn
	}
	return out
}

func (h *handlers[F]) len() int {
	return len(h.entries)
}
