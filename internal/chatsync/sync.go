package chatsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collaboraid-sync/internal/domain"
	collab_errors "collaboraid-sync/pkg/errors"
	"collaboraid-sync/pkg/logger"
)

const (
	DefaultDedupWindow = 5 * time.Second

	sourcePush  = "push"
	sourceREST  = "rest"
	sourceLocal = "local"
)

type Options struct {
	Self         domain.Participant
	History      HistoryFetcher
	Sender       MessageSender
	Push         PushChannel
	Participants ParticipantCache

	// ReadMarker, when set, receives a read receipt for every inbound
	// message Open marks read. A 404 turns receipts off for the session.
	ReadMarker ReadMarker

	// DedupWindow bounds the content/time fallback match. Zero means
	// DefaultDedupWindow. ExactDedupOnly restricts the fallback to copies
	// with identical timestamps.
	DedupWindow    time.Duration
	ExactDedupOnly bool

	Clock       func() time.Time
	NewClientID func() string
	Logger      *logger.Logger
	Metrics     *Metrics
}

// PendingMessage reports the outcome of a send.
type PendingMessage struct {
	ClientID    string
	Counterpart domain.UserID
	Transport   string
	Status      domain.Status
	Message     domain.Message
	Err         error
}

// ConversationSync keeps one ordered, de-duplicated timeline per counterpart
// and reconciles REST history, push events and optimistic local sends into
// it.
type ConversationSync struct {
	self         domain.Participant
	history      HistoryFetcher
	sender       MessageSender
	push         PushChannel
	participants ParticipantCache
	marker       ReadMarker
	markerOff    atomic.Bool
	matcher      matcher
	clock        func() time.Time
	newClientID  func() string
	logger       *logger.Logger
	metrics      *Metrics

	mu         sync.Mutex
	timelines  map[domain.UserID]*timeline
	people     map[domain.UserID]domain.Participant
	active     domain.UserID
	seq        uint64
	subscribed bool

	watchOnce sync.Once
	notifier  *notifier
}

func New(opts Options) (*ConversationSync, error) {
	if opts.Self.ID <= 0 {
		return nil, fmt.Errorf("%w: self participant id is required", collab_errors.ErrInvalidInput)
	}
	if opts.History == nil {
		return nil, fmt.Errorf("%w: history fetcher is required", collab_errors.ErrInvalidInput)
	}
	window := opts.DedupWindow
	if window == 0 {
		window = DefaultDedupWindow
	}
	s := &ConversationSync{
		self:         opts.Self,
		history:      opts.History,
		sender:       opts.Sender,
		push:         opts.Push,
		participants: opts.Participants,
		marker:       opts.ReadMarker,
		matcher:      matcher{window: window, exact: opts.ExactDedupOnly},
		clock:        opts.Clock,
		newClientID:  opts.NewClientID,
		logger:       logger.OrNop(opts.Logger).Named("chatsync"),
		metrics:      opts.Metrics,
		timelines:    make(map[domain.UserID]*timeline),
		people:       map[domain.UserID]domain.Participant{opts.Self.ID: opts.Self},
		notifier:     newNotifier(),
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newClientID == nil {
		s.newClientID = func() string { return uuid.NewString() }
	}
	return s, nil
}

func (s *ConversationSync) Self() domain.Participant {
	return s.self
}

// Subscribe registers an observer. Updates arrive in the order state changes
// were applied; the returned func removes the observer.
func (s *ConversationSync) Subscribe(fn func(Update)) func() {
	return s.notifier.subscribe(fn)
}

// Start connects the push channel and subscribes the inbound topic. A
// failed connection is reported but not fatal: the channel keeps retrying.
func (s *ConversationSync) Start(ctx context.Context) (domain.ConnectionState, error) {
	if s.push == nil {
		return domain.Disconnected, nil
	}
	s.watchOnce.Do(func() { s.push.Watch(s.onConnectionState) })
	if err := s.ensureSubscribed(); err != nil {
		return s.push.State(), err
	}
	return s.push.Connect(ctx)
}

func (s *ConversationSync) Close() error {
	if s.push == nil {
		return nil
	}
	return s.push.Disconnect()
}

func (s *ConversationSync) ConnectionState() domain.ConnectionState {
	if s.push == nil {
		return domain.Disconnected
	}
	return s.push.State()
}

func (s *ConversationSync) onConnectionState(state domain.ConnectionState) {
	s.metrics.state(state)
	s.logger.Infof("push channel %s", state)
	s.notifier.enqueue(Update{Kind: UpdateConnection, State: state})
	s.notifier.flush()
}

func (s *ConversationSync) ensureSubscribed() error {
	if s.push == nil {
		return nil
	}
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return nil
	}
	s.subscribed = true
	s.mu.Unlock()

	if err := s.push.Subscribe(s.self.ID, s.OnIncoming); err != nil {
		s.mu.Lock()
		s.subscribed = false
		s.mu.Unlock()
		s.logger.Errorf("subscribe inbound topic for %d: %v", s.self.ID, err)
		return err
	}
	return nil
}

// Open makes counterpart the active conversation, merges its history and
// marks it read. On a history failure the local view is still returned
// together with a *FetchError.
func (s *ConversationSync) Open(ctx context.Context, counterpart domain.Participant) (domain.Conversation, error) {
	if counterpart.ID <= 0 || counterpart.ID == s.self.ID {
		return domain.Conversation{}, fmt.Errorf("%w: counterpart %d", collab_errors.ErrInvalidInput, counterpart.ID)
	}
	counterpart = s.resolve(ctx, counterpart)

	s.mu.Lock()
	s.active = counterpart.ID
	learned := s.learnLocked(counterpart)
	s.timelineLocked(counterpart.ID)
	s.mu.Unlock()
	s.cacheParticipants(ctx, learned)

	if err := s.ensureSubscribed(); err != nil {
		s.logger.Warnf("open %d without push subscription: %v", counterpart.ID, err)
	}

	remote, fetchErr := s.history.GetConversation(ctx, counterpart.ID)
	if fetchErr != nil {
		fetchErr = asFetchError("conversation", fetchErr)
		s.logger.Warnf("load conversation with %d: %v", counterpart.ID, fetchErr)
	}

	s.mu.Lock()
	learned = nil
	for _, m := range remote {
		s.mergeLocked(sourceREST, m, &learned)
	}
	tl := s.timelineLocked(counterpart.ID)
	unreadIDs := tl.markAllRead(s.self.ID)
	tl.notified = len(tl.entries)
	conv := s.conversationLocked(counterpart.ID, tl)
	summary := conv.Summary()
	s.notifier.enqueue(Update{
		Kind:          UpdateConversation,
		CounterpartID: counterpart.ID,
		Conversation:  &conv,
		Summary:       &summary,
		State:         s.ConnectionState(),
	})
	s.mu.Unlock()
	s.notifier.flush()
	s.cacheParticipants(ctx, learned)

	s.markRead(ctx, unreadIDs)
	return conv, fetchErr
}

func (s *ConversationSync) markRead(ctx context.Context, ids []string) {
	if s.marker == nil || s.markerOff.Load() {
		return
	}
	for _, id := range ids {
		err := s.marker.MarkRead(ctx, id)
		if err == nil {
			continue
		}
		if errors.Is(err, collab_errors.ErrNotFound) {
			s.markerOff.Store(true)
			s.logger.Infof("read receipts not supported by backend, disabled: %v", err)
			return
		}
		s.logger.Warnf("mark message %s read: %v", id, err)
	}
}

// Active returns the counterpart of the open conversation.
func (s *ConversationSync) Active() (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == 0 {
		return domain.Participant{}, false
	}
	return s.people[s.active], true
}

// Send appends an optimistic message and delivers it through the push
// channel when connected, falling back to REST. Whitespace-only content is
// ignored and yields (nil, nil). When both paths fail the message moves to
// the failed list and the returned error is a *SendError.
func (s *ConversationSync) Send(ctx context.Context, counterpart domain.Participant, content string) (*PendingMessage, error) {
	if counterpart.ID <= 0 || counterpart.ID == s.self.ID {
		return nil, fmt.Errorf("%w: counterpart %d", collab_errors.ErrInvalidInput, counterpart.ID)
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	msg := domain.Message{
		ClientID:  s.newClientID(),
		Sender:    s.self,
		Receiver:  counterpart,
		Content:   content,
		Timestamp: s.clock(),
		Read:      true,
		Status:    domain.StatusPending,
	}
	return s.deliver(ctx, msg)
}

// SendActive sends to the counterpart of the open conversation.
func (s *ConversationSync) SendActive(ctx context.Context, content string) (*PendingMessage, error) {
	counterpart, ok := s.Active()
	if !ok {
		return nil, collab_errors.ErrNoActiveConversation
	}
	return s.Send(ctx, counterpart, content)
}

// Retry re-delivers a failed message under its original client id.
func (s *ConversationSync) Retry(ctx context.Context, clientID string) (*PendingMessage, error) {
	s.mu.Lock()
	var (
		msg   domain.Message
		found bool
	)
	for _, tl := range s.timelines {
		if msg, found = tl.takeFailed(clientID); found {
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return nil, fmt.Errorf("%w: %s", collab_errors.ErrUnknownMessage, clientID)
	}
	msg.Status = domain.StatusPending
	msg.Timestamp = s.clock()
	return s.deliver(ctx, msg)
}

func (s *ConversationSync) deliver(ctx context.Context, msg domain.Message) (*PendingMessage, error) {
	cp := msg.Receiver.ID

	s.mu.Lock()
	learned := s.learnLocked(msg.Receiver)
	msg.Receiver = s.people[cp]
	tl := s.timelineLocked(cp)
	s.seq++
	tl.insert(msg, s.seq)
	s.metrics.merge(sourceLocal, outcomeInserted)
	s.enqueueLocked(cp)
	s.mu.Unlock()
	s.notifier.flush()
	s.cacheParticipants(ctx, learned)

	out := domain.Outbound{
		ClientID: msg.ClientID,
		Sender:   msg.Sender,
		Receiver: msg.Receiver,
		Content:  msg.Content,
	}
	log := s.logger.With(zap.String("client_id", msg.ClientID), zap.Int64("receiver_id", int64(cp)))

	if s.push != nil && s.push.State() == domain.Connected {
		err := s.push.Publish(ctx, out)
		if err == nil {
			s.metrics.send(sourcePush, "ok")
			return s.confirm(msg, domain.Message{}, sourcePush), nil
		}
		s.metrics.send(sourcePush, "error")
		log.Warnf("push publish failed, falling back to REST: %v", err)
	}

	if s.sender == nil {
		return s.fail(msg, collab_errors.ErrServiceUnavailable)
	}
	confirmed, err := s.sender.Send(ctx, out)
	if err != nil {
		s.metrics.send(sourceREST, "error")
		log.Errorf("send failed: %v", err)
		return s.fail(msg, err)
	}
	s.metrics.send(sourceREST, "ok")
	return s.confirm(msg, confirmed, sourceREST), nil
}

// confirm marks the optimistic entry sent and, when the transport returned
// the stored message, merges it so the entry takes the server id and time.
func (s *ConversationSync) confirm(msg domain.Message, stored domain.Message, transport string) *PendingMessage {
	cp := msg.Receiver.ID

	s.mu.Lock()
	tl := s.timelineLocked(cp)
	if stored.ID != "" && !stored.Timestamp.IsZero() {
		stored.ClientID = msg.ClientID
		stored.Status = domain.StatusSent
		stored.Read = true
		if stored.Sender.ID == 0 {
			stored.Sender = msg.Sender
		}
		if stored.Receiver.ID == 0 {
			stored.Receiver = msg.Receiver
		}
		s.seq++
		s.metrics.merge(sourceREST, tl.merge(stored, s.seq, s.matcher))
	}
	if e := tl.find(msg.ClientID); e != nil {
		if e.msg.Status == domain.StatusPending {
			e.msg.Status = domain.StatusSent
		}
		msg = e.msg
	} else {
		msg.Status = domain.StatusSent
	}
	s.enqueueLocked(cp)
	s.mu.Unlock()
	s.notifier.flush()

	return &PendingMessage{
		ClientID:    msg.ClientID,
		Counterpart: cp,
		Transport:   transport,
		Status:      msg.Status,
		Message:     msg,
	}
}

func (s *ConversationSync) fail(msg domain.Message, cause error) (*PendingMessage, error) {
	cp := msg.Receiver.ID
	var sendErr *collab_errors.SendError
	if !errors.As(cause, &sendErr) {
		sendErr = &collab_errors.SendError{ClientID: msg.ClientID, Err: cause}
	}

	s.mu.Lock()
	tl := s.timelineLocked(cp)
	if e := tl.find(msg.ClientID); e != nil && e.msg.Authoritative() {
		// A push echo confirmed the message while the fallback was failing.
		e.msg.Status = domain.StatusSent
		confirmed := e.msg
		s.enqueueLocked(cp)
		s.mu.Unlock()
		s.notifier.flush()
		return &PendingMessage{
			ClientID:    confirmed.ClientID,
			Counterpart: cp,
			Transport:   sourcePush,
			Status:      confirmed.Status,
			Message:     confirmed,
		}, nil
	}
	if removed, ok := tl.remove(msg.ClientID); ok {
		msg = removed
	}
	msg.Status = domain.StatusFailed
	tl.failed = append(tl.failed, msg)
	failed := msg
	s.enqueueLocked(cp)
	s.notifier.enqueue(Update{Kind: UpdateFailed, CounterpartID: cp, Failed: &failed, State: s.ConnectionState()})
	s.mu.Unlock()
	s.notifier.flush()

	return &PendingMessage{
		ClientID:    msg.ClientID,
		Counterpart: cp,
		Status:      domain.StatusFailed,
		Message:     msg,
		Err:         sendErr,
	}, sendErr
}

// OnIncoming merges a single push event.
func (s *ConversationSync) OnIncoming(m domain.Message) {
	s.apply(sourcePush, []domain.Message{m})
}

// Reconcile merges a batch of fetched history.
func (s *ConversationSync) Reconcile(remote []domain.Message) {
	s.apply(sourceREST, remote)
}

// Refresh re-reads received and sent history. Each list is reconciled on its
// own, so one failing endpoint does not hide the other's messages.
func (s *ConversationSync) Refresh(ctx context.Context) error {
	var errs []error
	for _, src := range []struct {
		op    string
		fetch func(context.Context) ([]domain.Message, error)
	}{
		{"received", s.history.GetReceived},
		{"sent", s.history.GetSent},
	} {
		msgs, err := src.fetch(ctx)
		if err != nil {
			errs = append(errs, asFetchError(src.op, err))
			continue
		}
		s.Reconcile(msgs)
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warnf("refresh: %v", err)
	}
	return err
}

func (s *ConversationSync) apply(source string, msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	var learned []domain.Participant
	s.mu.Lock()
	touched := make(map[domain.UserID]struct{})
	var order []domain.UserID
	for _, m := range msgs {
		cp, changed := s.mergeLocked(source, m, &learned)
		if !changed {
			continue
		}
		if _, ok := touched[cp]; !ok {
			touched[cp] = struct{}{}
			order = append(order, cp)
		}
	}
	for _, cp := range order {
		s.enqueueLocked(cp)
	}
	s.mu.Unlock()
	s.notifier.flush()
	s.cacheParticipants(context.Background(), learned)
}

// mergeLocked validates m and applies the merge rule to its conversation.
func (s *ConversationSync) mergeLocked(source string, m domain.Message, learned *[]domain.Participant) (domain.UserID, bool) {
	if m.Sender.ID <= 0 || m.Receiver.ID <= 0 || m.Timestamp.IsZero() {
		s.metrics.dropped()
		s.logger.Warnf("discarding %s message %q: missing sender, receiver or timestamp", source, m.ID)
		return 0, false
	}
	counterpart, ok := m.Counterpart(s.self.ID)
	if !ok {
		s.metrics.dropped()
		s.logger.Warnf("discarding %s message %q between %d and %d", source, m.ID, m.Sender.ID, m.Receiver.ID)
		return 0, false
	}
	if m.Status == "" {
		m.Status = domain.StatusSent
	}
	if m.Sender.ID == s.self.ID || counterpart.ID == s.active {
		m.Read = true
	}
	*learned = append(*learned, s.learnLocked(m.Sender)...)
	*learned = append(*learned, s.learnLocked(m.Receiver)...)

	tl := s.timelineLocked(counterpart.ID)
	s.seq++
	o := tl.merge(m, s.seq, s.matcher)
	s.metrics.merge(source, o)
	return counterpart.ID, o != outcomeUnchanged
}

func (s *ConversationSync) enqueueLocked(cp domain.UserID) {
	tl := s.timelineLocked(cp)
	conv := s.conversationLocked(cp, tl)
	summary := conv.Summary()
	u := Update{
		Kind:          UpdateSummary,
		CounterpartID: cp,
		Summary:       &summary,
		State:         s.ConnectionState(),
	}
	if cp == s.active {
		u.Kind = UpdateConversation
		u.Conversation = &conv
		if grown := len(tl.entries) - tl.notified; grown > 0 {
			u.Appended = grown
			u.AutoScroll = true
		}
		tl.notified = len(tl.entries)
	}
	s.notifier.enqueue(u)
}

func (s *ConversationSync) timelineLocked(cp domain.UserID) *timeline {
	tl, ok := s.timelines[cp]
	if !ok {
		tl = newTimeline()
		s.timelines[cp] = tl
	}
	return tl
}

func (s *ConversationSync) conversationLocked(cp domain.UserID, tl *timeline) domain.Conversation {
	counterpart, ok := s.people[cp]
	if !ok {
		counterpart = domain.Participant{ID: cp}
	}
	return domain.Conversation{
		Counterpart:    counterpart,
		Messages:       tl.messages(),
		UnreadCount:    tl.unread(s.self.ID),
		LastActivityAt: tl.lastActivity(),
	}
}

// learnLocked records participant details. Known fields are never
// overwritten; the participant is returned when something new was learned.
func (s *ConversationSync) learnLocked(p domain.Participant) []domain.Participant {
	if p.ID <= 0 {
		return nil
	}
	known, ok := s.people[p.ID]
	if !ok {
		s.people[p.ID] = p
		if p.Name == "" {
			return nil
		}
		return []domain.Participant{p}
	}
	merged, changed := known.Fill(p)
	if !changed {
		return nil
	}
	s.people[p.ID] = merged
	return []domain.Participant{merged}
}

// resolve fills in display details for a counterpart given by id only.
func (s *ConversationSync) resolve(ctx context.Context, p domain.Participant) domain.Participant {
	s.mu.Lock()
	if known, ok := s.people[p.ID]; ok {
		p, _ = p.Fill(known)
	}
	s.mu.Unlock()
	if p.Name != "" || s.participants == nil {
		return p
	}
	cached, ok, err := s.participants.Get(ctx, p.ID)
	if err != nil {
		s.logger.Warnf("participant cache lookup %d: %v", p.ID, err)
		return p
	}
	if ok {
		p, _ = p.Fill(cached)
	}
	return p
}

func (s *ConversationSync) cacheParticipants(ctx context.Context, ps []domain.Participant) {
	if s.participants == nil {
		return
	}
	for _, p := range ps {
		if err := s.participants.Put(ctx, p); err != nil {
			s.logger.Warnf("participant cache store %d: %v", p.ID, err)
		}
	}
}

func (s *ConversationSync) Participant(id domain.UserID) (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.people[id]
	return p, ok
}

// Conversation returns a snapshot of the conversation with counterpart id.
func (s *ConversationSync) Conversation(id domain.UserID) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.timelines[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return s.conversationLocked(id, tl), true
}

// Conversations lists every non-empty conversation, most recent first.
func (s *ConversationSync) Conversations() []domain.ConversationSummary {
	s.mu.Lock()
	out := make([]domain.ConversationSummary, 0, len(s.timelines))
	for id, tl := range s.timelines {
		if len(tl.entries) == 0 {
			continue
		}
		out = append(out, s.conversationLocked(id, tl).Summary())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].Counterpart.ID < out[j].Counterpart.ID
	})
	return out
}

// Failed returns messages to id that could not be delivered.
func (s *ConversationSync) Failed(id domain.UserID) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.timelines[id]
	if !ok {
		return nil
	}
	return append([]domain.Message(nil), tl.failed...)
}

func asFetchError(op string, err error) error {
	var fe *collab_errors.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &collab_errors.FetchError{Op: op, Err: err}
}
