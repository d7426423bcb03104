package chatsync

import (
	"slices"
	"sync"

	"collaboraid-sync/internal/domain"
)

type UpdateKind string

const (
	UpdateConversation UpdateKind = "conversation"
	UpdateSummary      UpdateKind = "summary"
	UpdateConnection   UpdateKind = "connection"
	UpdateFailed       UpdateKind = "failed"
)

// Update is delivered to observers after every state change. Conversation is
// set for the active conversation only; Summary for any conversation change.
type Update struct {
	Kind          UpdateKind                  `json:"kind"`
	CounterpartID domain.UserID               `json:"counterpartId,omitempty"`
	Conversation  *domain.Conversation        `json:"conversation,omitempty"`
	Summary       *domain.ConversationSummary `json:"summary,omitempty"`
	Failed        *domain.Message             `json:"failed,omitempty"`
	State         domain.ConnectionState      `json:"state"`
	Appended      int                         `json:"appended,omitempty"`
	AutoScroll    bool                        `json:"autoScroll,omitempty"`
}

// notifier queues updates in merge order and delivers them outside the
// engine lock. Only one goroutine drains at a time; an observer that calls
// back into the engine has its updates delivered by the drain already in
// progress.
type notifier struct {
	mu        sync.Mutex
	observers map[int]func(Update)
	nextID    int
	queue     []Update

	draining sync.Mutex
}

func newNotifier() *notifier {
	return &notifier{observers: make(map[int]func(Update))}
}

func (n *notifier) subscribe(fn func(Update)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.observers[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.observers, id)
		n.mu.Unlock()
	}
}

func (n *notifier) enqueue(updates ...Update) {
	if len(updates) == 0 {
		return
	}
	n.mu.Lock()
	n.queue = append(n.queue, updates...)
	n.mu.Unlock()
}

func (n *notifier) flush() {
	for {
		if !n.draining.TryLock() {
			return
		}
		for {
			u, observers, ok := n.next()
			if !ok {
				break
			}
			for _, fn := range observers {
				fn(u)
			}
		}
		n.draining.Unlock()

		n.mu.Lock()
		pending := len(n.queue)
		n.mu.Unlock()
		if pending == 0 {
			return
		}
	}
}

func (n *notifier) next() (Update, []func(Update), bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return Update{}, nil, false
	}
	u := n.queue[0]
	n.queue = n.queue[1:]
	ids := make([]int, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Update), len(ids))
	for i, id := range ids {
		fns[i] = n.observers[id]
	}
	return u, fns, true
}
