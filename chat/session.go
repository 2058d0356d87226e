package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHistoryLimit caps how many messages a thread selection loads. There
// is no scroll-back pagination; the newest window is all the session holds.
const DefaultHistoryLimit = 200

// ThreadState is the per-thread loading state machine.
type ThreadState int

const (
	StateNoThread ThreadState = iota
	StateThreadSelected
	StateMessagesLoading
	StateMessagesReady
)

// Session errors surfaced to the embedding UI.
var (
	ErrClosed       = errors.New("chat: session is closed")
	ErrNoThread     = errors.New("chat: no thread selected")
	ErrEmptyMessage = errors.New("chat: message text is empty")
)

// Thread is the session's working view of one response: its summary joined
// with the resolved counterpart identity.
type Thread struct {
	Summary
	CounterpartID   uint
	CounterpartName string
}

// LastActivity is the thread-list ordering key: the newest message time,
// falling back to the response creation time for threads with no messages.
func (t *Thread) LastActivity() time.Time {
	if t.LastMessageAt != nil {
		return *t.LastMessageAt
	}
	return t.ResponseCreatedAt
}

// Session is the chat session controller for one authenticated user. All
// methods are safe for concurrent use; the mutex serializes UI calls with the
// live channel's dispatch goroutine the same way the event loop of a
// single-threaded client would.
type Session struct {
	mu sync.Mutex

	user   User
	stores Stores
	policy Policy

	historyLimit int

	tab   Tab
	sent  []*Thread
	owned []*Thread

	selected *Thread
	state    ThreadState
	messages []Message
	seen     map[uint]struct{}

	draft   string
	lastErr string

	loadGen int

	live     LiveChannel
	liveOnce sync.Once
	closed   bool

	completion *Completion
}

// NewSession creates a session for user against the given collaborators.
func NewSession(user User, stores Stores, policy Policy) *Session {
	return &Session{
		user:         user,
		stores:       stores,
		policy:       policy,
		historyLimit: DefaultHistoryLimit,
		tab:          TabSent,
		state:        StateNoThread,
		seen:         make(map[uint]struct{}),
	}
}

// SetHistoryLimit overrides the per-thread history window (primarily for tests).
func (s *Session) SetHistoryLimit(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 {
		s.historyLimit = limit
	}
}

// User returns the session's authenticated user.
func (s *Session) User() User {
	return s.user
}

// Tab returns the visible thread-list side.
func (s *Session) Tab() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tab
}

// State returns the per-thread loading state.
func (s *Session) State() ThreadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the latest user-visible error string, empty when none. Errors
// are a side channel; they never reset the thread state machine.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LoadThreads fetches both thread lists concurrently, resolves listing titles
// and counterpart identities with deduplicated fan-out lookups, and installs
// the result. A failed lookup branch degrades that thread's display fields;
// a failed list fetch keeps the previously loaded list for that side and
// records a user-visible error without touching the other side.
func (s *Session) LoadThreads(ctx context.Context) {
	var (
		wg       sync.WaitGroup
		sentRows []Summary
		ownRows  []Summary
		sentErr  error
		ownErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sentRows, sentErr = s.stores.Responses.ListSentChats(ctx)
	}()
	go func() {
		defer wg.Done()
		ownRows, ownErr = s.stores.Responses.ListOwnedChats(ctx)
	}()
	wg.Wait()

	// Resolve listings for every distinct service id across both sides.
	serviceIDs := make(map[uint]struct{})
	for _, row := range sentRows {
		serviceIDs[row.ServiceID] = struct{}{}
	}
	for _, row := range ownRows {
		serviceIDs[row.ServiceID] = struct{}{}
	}
	servicesByID := s.resolveServices(ctx, serviceIDs)

	sentThreads := s.buildThreads(sentRows, servicesByID, false)
	ownThreads := s.buildThreads(ownRows, servicesByID, true)

	// Resolve counterpart profiles for every distinct id.
	userIDs := make(map[uint]struct{})
	for _, t := range sentThreads {
		userIDs[t.CounterpartID] = struct{}{}
	}
	for _, t := range ownThreads {
		userIDs[t.CounterpartID] = struct{}{}
	}
	usersByID := s.resolveUsers(ctx, userIDs)
	nameThreads(sentThreads, usersByID)
	nameThreads(ownThreads, usersByID)

	sortThreads(sentThreads)
	sortThreads(ownThreads)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if sentErr == nil {
		s.sent = sentThreads
	}
	if ownErr == nil {
		s.owned = ownThreads
	}
	switch {
	case sentErr != nil && ownErr != nil:
		s.lastErr = "Failed to load chats."
	case sentErr != nil:
		s.lastErr = "Failed to load sent chats."
	case ownErr != nil:
		s.lastErr = "Failed to load chats on your listings."
	default:
		s.lastErr = ""
	}

	// Re-point the selection at the freshly installed object for the same
	// response; a selection left on the old copy would stop tracking status
	// changes. The thread may also be gone entirely (withdrawn elsewhere).
	if s.selected != nil {
		if replacement := findThread(s.currentListLocked(), s.selected.ResponseID); replacement != nil {
			s.selected = replacement
		} else {
			s.selected = nil
			s.messages = nil
			s.seen = make(map[uint]struct{})
			s.completion = nil
			s.state = StateNoThread
		}
	}
}

func findThread(threads []*Thread, responseID uint) *Thread {
	for _, t := range threads {
		if t.ResponseID == responseID {
			return t
		}
	}
	return nil
}

// resolveServices fans out one lookup per id and joins the successes. A
// failed branch is simply absent from the result; it never poisons the rest.
func (s *Session) resolveServices(ctx context.Context, ids map[uint]struct{}) map[uint]*Service {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		byID    = make(map[uint]*Service, len(ids))
		lookups = s.stores.Services
	)
	for id := range ids {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			service, err := lookups.GetService(ctx, id)
			if err != nil {
				log.Printf("chat: service %d lookup failed: %v", id, err)
				return
			}
			mu.Lock()
			byID[id] = service
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return byID
}

func (s *Session) resolveUsers(ctx context.Context, ids map[uint]struct{}) map[uint]*User {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		byID = make(map[uint]*User, len(ids))
	)
	for id := range ids {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			user, err := s.stores.Users.GetUser(ctx, id)
			if err != nil {
				log.Printf("chat: user %d lookup failed: %v", id, err)
				return
			}
			mu.Lock()
			byID[id] = user
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return byID
}

// buildThreads turns summaries into threads, preferring the freshly resolved
// listing title over the summary-supplied one and falling back to the latter
// when the lookup failed.
func (s *Session) buildThreads(rows []Summary, servicesByID map[uint]*Service, owned bool) []*Thread {
	threads := make([]*Thread, 0, len(rows))
	for _, row := range rows {
		t := &Thread{Summary: row}
		if owned {
			t.CounterpartID = row.SenderID
		} else {
			t.CounterpartID = row.OwnerID
		}
		if service, ok := servicesByID[row.ServiceID]; ok {
			t.ServiceTitle = service.Title
			t.OwnerID = service.OwnerID
		}
		threads = append(threads, t)
	}
	return threads
}

func nameThreads(threads []*Thread, usersByID map[uint]*User) {
	for _, t := range threads {
		if user, ok := usersByID[t.CounterpartID]; ok {
			t.CounterpartName = user.DisplayName()
		} else {
			// Lookup failed; show the raw id rather than dropping the thread.
			t.CounterpartName = strconv.FormatUint(uint64(t.CounterpartID), 10)
		}
	}
}

// sortThreads orders by last activity descending, ties broken by response id
// ascending for determinism.
func sortThreads(threads []*Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		ti, tj := threads[i].LastActivity(), threads[j].LastActivity()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return threads[i].ResponseID < threads[j].ResponseID
	})
}

// Threads returns the active threads of the current tab in display order.
func (s *Session) Threads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterThreads(s.currentListLocked(), StatusActive)
}

// ArchivedThreads returns the completed threads of the current tab.
func (s *Session) ArchivedThreads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterThreads(s.currentListLocked(), StatusArchived)
}

func (s *Session) currentListLocked() []*Thread {
	if s.tab == TabOwned {
		return s.owned
	}
	return s.sent
}

func filterThreads(threads []*Thread, status string) []*Thread {
	out := make([]*Thread, 0, len(threads))
	for _, t := range threads {
		st := t.Status
		if st == "" {
			st = StatusActive
		}
		if st == status {
			out = append(out, t)
		}
	}
	return out
}

// SelectedThread returns the open thread, nil when none.
func (s *Session) SelectedThread() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Messages returns a copy of the open thread's merged message list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SwitchTab changes the visible side and re-selects its default thread.
func (s *Session) SwitchTab(ctx context.Context, tab Tab) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.tab = tab
	s.mu.Unlock()
	return s.SelectThread(ctx, nil)
}

// SelectThread opens the thread with the given response id, or the current
// tab's most recently active thread when id is nil. Selection resets the
// message list and loads history; a result arriving after a newer selection
// is discarded silently.
func (s *Session) SelectThread(ctx context.Context, responseID *uint) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	var target *Thread
	list := s.currentListLocked()
	if responseID != nil {
		target = findThread(list, *responseID)
	} else {
		active := filterThreads(list, StatusActive)
		if len(active) > 0 {
			target = mostRecent(active)
		}
	}

	s.selected = target
	s.messages = nil
	s.seen = make(map[uint]struct{})
	s.completion = nil
	if target == nil {
		s.state = StateNoThread
		s.mu.Unlock()
		return nil
	}

	s.state = StateMessagesLoading
	s.loadGen++
	gen := s.loadGen
	id := target.ResponseID
	limit := s.historyLimit
	s.mu.Unlock()

	return s.loadHistory(ctx, gen, id, limit)
}

// ReloadMessages refetches the open thread's history window without changing
// the selection. The stale-load rule applies here too: a newer selection or
// reload supersedes an in-flight one.
func (s *Session) ReloadMessages(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.selected == nil {
		s.mu.Unlock()
		return ErrNoThread
	}
	s.messages = nil
	s.seen = make(map[uint]struct{})
	s.state = StateMessagesLoading
	s.loadGen++
	gen := s.loadGen
	id := s.selected.ResponseID
	limit := s.historyLimit
	s.mu.Unlock()

	return s.loadHistory(ctx, gen, id, limit)
}

// loadHistory runs the fetch half of a selection or reload and merges the
// result unless a newer load superseded it.
func (s *Session) loadHistory(ctx context.Context, gen int, responseID uint, limit int) error {
	history, err := s.stores.Messages.ListMessages(ctx, responseID, 0, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.loadGen {
		// A newer load superseded this one; drop the result.
		return nil
	}
	s.state = StateMessagesReady
	if err != nil {
		s.lastErr = "Failed to load messages."
		return nil
	}
	s.lastErr = ""
	for _, msg := range history {
		s.mergeLocked(msg)
	}
	return nil
}

func mostRecent(threads []*Thread) *Thread {
	best := threads[0]
	for _, t := range threads[1:] {
		ta, tb := t.LastActivity(), best.LastActivity()
		switch {
		case ta.After(tb):
			best = t
		case ta.Equal(tb) && t.ResponseID < best.ResponseID:
			best = t
		}
	}
	return best
}

// Draft returns the compose input's current text.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the compose input's text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Send posts the draft to the open thread. Whitespace-only drafts are
// rejected locally without a network call. The draft clears before the send
// resolves and is not restored on failure; the cleared input is the
// documented trade-off for a responsive compose box.
func (s *Session) Send(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.selected == nil {
		s.mu.Unlock()
		return ErrNoThread
	}
	text := strings.TrimSpace(s.draft)
	if text == "" {
		s.mu.Unlock()
		return ErrEmptyMessage
	}
	responseID := s.selected.ResponseID
	s.draft = ""
	s.mu.Unlock()

	msg, err := s.stores.Messages.AppendMessage(ctx, responseID, text, "")

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = "Failed to send message."
		return fmt.Errorf("chat: send: %w", err)
	}
	s.lastErr = ""
	if s.closed || s.selected == nil || s.selected.ResponseID != responseID {
		// Thread switched while the send was in flight; the message will
		// show up from history next time the thread opens.
		return nil
	}
	s.mergeLocked(*msg)
	return nil
}

// SendImage posts an image attachment to the open thread.
func (s *Session) SendImage(ctx context.Context, imageBase64 string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.selected == nil {
		s.mu.Unlock()
		return ErrNoThread
	}
	if strings.TrimSpace(imageBase64) == "" {
		s.mu.Unlock()
		return ErrEmptyMessage
	}
	responseID := s.selected.ResponseID
	s.mu.Unlock()

	msg, err := s.stores.Messages.AppendMessage(ctx, responseID, "", imageBase64)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = "Failed to send message."
		return fmt.Errorf("chat: send image: %w", err)
	}
	s.lastErr = ""
	if s.closed || s.selected == nil || s.selected.ResponseID != responseID {
		return nil
	}
	s.mergeLocked(*msg)
	return nil
}

// AttachLive wires an open live channel into the session and starts the
// dispatch goroutine. Attaching a replacement channel closes the previous one
// first so its dispatch goroutine drains and exits. Connect failures are the
// caller's signal to fall back to explicit reloads; a session works fine
// without a channel.
func (s *Session) AttachLive(ch LiveChannel) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ch.Close()
		return
	}
	prev := s.live
	s.live = ch
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	go func() {
		for env := range ch.Envelopes() {
			s.handleEnvelope(env)
		}
	}()
}

// handleEnvelope applies one live push. Unknown envelope types are a no-op;
// malformed payloads are logged and dropped. A push for any thread other than
// the open one is ignored, and nothing is applied after Close.
func (s *Session) handleEnvelope(env Envelope) {
	if env.Type != EnvelopeNewMessage {
		return
	}
	var msg Message
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		log.Printf("chat: malformed %s payload: %v", env.Type, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.selected == nil {
		return
	}
	if msg.ResponseID != s.selected.ResponseID {
		return
	}
	s.mergeLocked(msg)
}

// mergeLocked inserts a message into the ordered view. Dedup by id wins over
// everything: a duplicate is dropped, never replaced or reordered. New ids
// are inserted keeping non-decreasing (created_at, id) order.
func (s *Session) mergeLocked(msg Message) {
	if _, ok := s.seen[msg.ID]; ok {
		return
	}
	s.seen[msg.ID] = struct{}{}

	pos := sort.Search(len(s.messages), func(i int) bool {
		m := s.messages[i]
		if !m.CreatedAt.Equal(msg.CreatedAt) {
			return m.CreatedAt.After(msg.CreatedAt)
		}
		return m.ID > msg.ID
	})
	s.messages = append(s.messages, Message{})
	copy(s.messages[pos+1:], s.messages[pos:])
	s.messages[pos] = msg
}

// Close tears the session down: the live channel is closed exactly once and
// no envelope or stale load settles afterwards. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.selected = nil
	s.messages = nil
	s.state = StateNoThread
	s.completion = nil
	live := s.live
	s.live = nil
	s.mu.Unlock()

	var err error
	if live != nil {
		s.liveOnce.Do(func() {
			err = live.Close()
		})
	}
	return err
}
