package chatsync

import (
	"sort"
	"strconv"
	"time"

	"collaboraid-sync/internal/domain"
)

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeInserted
	outcomeUpdated
)

func (o outcome) String() string {
	switch o {
	case outcomeInserted:
		return "inserted"
	case outcomeUpdated:
		return "updated"
	default:
		return "duplicate"
	}
}

// matcher configures the content/time fallback used when neither the server
// id nor the client id links two copies of a message.
type matcher struct {
	window time.Duration
	exact  bool
}

func (mt matcher) close(a, b time.Time) (time.Duration, bool) {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	if mt.exact || mt.window <= 0 {
		return d, d == 0
	}
	return d, d < mt.window
}

// entry is one canonical message. stamps keeps the original timestamp of
// every copy folded into it; the content/time fallback matches against
// those rather than the merged timestamp, which moves as copies arrive.
type entry struct {
	msg    domain.Message
	seq    uint64
	stamps []time.Time
}

func (e *entry) stamp(at time.Time) {
	for _, s := range e.stamps {
		if s.Equal(at) {
			return
		}
	}
	e.stamps = append(e.stamps, at)
}

// timeline holds the canonical message list for one counterpart. byID also
// carries ids absorbed from duplicates so later copies still resolve.
type timeline struct {
	entries    []*entry
	byID       map[string]*entry
	byClientID map[string]*entry
	failed     []domain.Message
	notified   int
}

func newTimeline() *timeline {
	return &timeline{
		byID:       make(map[string]*entry),
		byClientID: make(map[string]*entry),
	}
}

func (t *timeline) merge(m domain.Message, seq uint64, mt matcher) outcome {
	if m.ID != "" {
		if e, ok := t.byID[m.ID]; ok {
			return t.absorb(e, m)
		}
	}
	if m.ClientID != "" {
		if e, ok := t.byClientID[m.ClientID]; ok {
			return t.absorb(e, m)
		}
	}
	if found := t.lookalikes(m, mt); len(found) > 0 {
		e := found[0]
		joined := false
		for _, other := range found[1:] {
			t.join(e, other)
			joined = true
		}
		o := t.absorb(e, m)
		if joined && o == outcomeUnchanged {
			o = outcomeUpdated
		}
		return o
	}
	t.insert(m, seq)
	return outcomeInserted
}

func (t *timeline) insert(m domain.Message, seq uint64) {
	e := &entry{msg: m, seq: seq, stamps: []time.Time{m.Timestamp}}
	t.entries = append(t.entries, e)
	t.index(e)
	t.sort()
}

func (t *timeline) index(e *entry) {
	if e.msg.ID != "" {
		t.byID[e.msg.ID] = e
	}
	if e.msg.ClientID != "" {
		t.byClientID[e.msg.ClientID] = e
	}
}

// lookalikes returns every entry with the same direction and content that
// has a copy within the window of m, closest first. A copy bridging two
// entries links them all. Two distinct client ids are never folded together;
// when the candidates carry more than one, only the closest is used.
func (t *timeline) lookalikes(m domain.Message, mt matcher) []*entry {
	type candidate struct {
		e *entry
		d time.Duration
	}
	var found []candidate
	for _, e := range t.entries {
		c := e.msg
		if c.Sender.ID != m.Sender.ID || c.Receiver.ID != m.Receiver.ID || c.Content != m.Content {
			continue
		}
		if c.ClientID != "" && m.ClientID != "" && c.ClientID != m.ClientID {
			continue
		}
		best, ok := time.Duration(0), false
		for _, at := range e.stamps {
			if d, near := mt.close(at, m.Timestamp); near && (!ok || d < best) {
				best, ok = d, true
			}
		}
		if ok {
			found = append(found, candidate{e: e, d: best})
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].d != found[j].d {
			return found[i].d < found[j].d
		}
		return found[i].e.seq < found[j].e.seq
	})

	clientID := m.ClientID
	out := make([]*entry, 0, len(found))
	for _, c := range found {
		if id := c.e.msg.ClientID; id != "" {
			if clientID != "" && id != clientID {
				return out[:1]
			}
			clientID = id
		}
		out = append(out, c.e)
	}
	return out
}

// join folds other into e and points every index key of other at e.
func (t *timeline) join(e, other *entry) {
	t.absorb(e, other.msg)
	for _, at := range other.stamps {
		e.stamp(at)
	}
	if other.seq < e.seq {
		e.seq = other.seq
	}
	for k, v := range t.byID {
		if v == other {
			t.byID[k] = e
		}
	}
	for k, v := range t.byClientID {
		if v == other {
			t.byClientID[k] = e
		}
	}
	for i, cur := range t.entries {
		if cur == other {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	if t.notified > len(t.entries) {
		t.notified = len(t.entries)
	}
	t.sort()
}

func (t *timeline) absorb(e *entry, m domain.Message) outcome {
	before := e.msg
	cur := &e.msg
	e.stamp(m.Timestamp)

	switch {
	case m.ID == "":
		if !cur.Authoritative() && m.Timestamp.Before(cur.Timestamp) {
			cur.Timestamp = m.Timestamp
		}
	case cur.ID == "":
		cur.ID = m.ID
		cur.Timestamp = m.Timestamp
	case cur.ID == m.ID:
		if m.Timestamp.Before(cur.Timestamp) {
			cur.Timestamp = m.Timestamp
		}
	default:
		keep, alias := canonicalID(cur.ID, m.ID)
		cur.ID = keep
		t.byID[alias] = e
		if m.Timestamp.Before(cur.Timestamp) {
			cur.Timestamp = m.Timestamp
		}
	}

	if cur.ClientID == "" && m.ClientID != "" {
		cur.ClientID = m.ClientID
	}
	cur.Read = cur.Read || m.Read
	if cur.Status == domain.StatusPending && (m.Status == domain.StatusSent || m.ID != "") {
		cur.Status = domain.StatusSent
	}
	if cur.TaskID == "" {
		cur.TaskID = m.TaskID
	}
	if cur.TaskTitle == "" {
		cur.TaskTitle = m.TaskTitle
	}
	cur.Sender, _ = cur.Sender.Fill(m.Sender)
	cur.Receiver, _ = cur.Receiver.Fill(m.Receiver)

	t.index(e)
	if sameMessage(before, *cur) {
		return outcomeUnchanged
	}
	if !before.Timestamp.Equal(cur.Timestamp) {
		t.sort()
	}
	return outcomeUpdated
}

func (t *timeline) sort() {
	sort.Slice(t.entries, func(i, j int) bool {
		a, b := t.entries[i], t.entries[j]
		if !a.msg.Timestamp.Equal(b.msg.Timestamp) {
			return a.msg.Timestamp.Before(b.msg.Timestamp)
		}
		return a.seq < b.seq
	})
}

func (t *timeline) find(clientID string) *entry {
	if clientID == "" {
		return nil
	}
	return t.byClientID[clientID]
}

// remove drops the entry carrying clientID together with every index key
// that points at it.
func (t *timeline) remove(clientID string) (domain.Message, bool) {
	e := t.find(clientID)
	if e == nil {
		return domain.Message{}, false
	}
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	for k, v := range t.byID {
		if v == e {
			delete(t.byID, k)
		}
	}
	delete(t.byClientID, clientID)
	if t.notified > len(t.entries) {
		t.notified = len(t.entries)
	}
	return e.msg, true
}

func (t *timeline) takeFailed(clientID string) (domain.Message, bool) {
	for i, m := range t.failed {
		if m.ClientID == clientID {
			t.failed = append(t.failed[:i], t.failed[i+1:]...)
			return m, true
		}
	}
	return domain.Message{}, false
}

// markAllRead flips every message to read and returns the server ids of
// incoming messages that were unread.
func (t *timeline) markAllRead(self domain.UserID) []string {
	var ids []string
	for _, e := range t.entries {
		if e.msg.Read {
			continue
		}
		e.msg.Read = true
		if e.msg.Sender.ID != self && e.msg.ID != "" {
			ids = append(ids, e.msg.ID)
		}
	}
	return ids
}

func (t *timeline) messages() []domain.Message {
	out := make([]domain.Message, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.msg
	}
	return out
}

func (t *timeline) unread(self domain.UserID) int {
	n := 0
	for _, e := range t.entries {
		if !e.msg.Read && e.msg.Sender.ID != self {
			n++
		}
	}
	return n
}

func (t *timeline) lastActivity() time.Time {
	if len(t.entries) == 0 {
		return time.Time{}
	}
	return t.entries[len(t.entries)-1].msg.Timestamp
}

// canonicalID picks which of two server ids survives a heuristic merge:
// the numerically smaller one, or the lexically smaller for non-numeric ids.
func canonicalID(a, b string) (keep, alias string) {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		if ai <= bi {
			return a, b
		}
		return b, a
	}
	if a <= b {
		return a, b
	}
	return b, a
}

func sameMessage(a, b domain.Message) bool {
	return a.ID == b.ID &&
		a.ClientID == b.ClientID &&
		a.Sender == b.Sender &&
		a.Receiver == b.Receiver &&
		a.Content == b.Content &&
		a.Timestamp.Equal(b.Timestamp) &&
		a.Read == b.Read &&
		a.Status == b.Status &&
		a.TaskID == b.TaskID &&
		a.TaskTitle == b.TaskTitle
}
