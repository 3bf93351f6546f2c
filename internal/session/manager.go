package session

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/jargonaut/internal/observe"
)

// ── Options ───────────────────────────────────────────────────────────────────

// Option configures a [Manager].
type Option func(*Manager)

// WithTranscriber sets the speech-to-text backend used by voice_input and
// transcription streams. Without one those messages reply with an error.
func WithTranscriber(t Transcriber) Option {
	return func(m *Manager) { m.transcriber = t }
}

// WithSendBuffer sets the per-session outbound queue size.
func WithSendBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sendBuffer = n
		}
	}
}

// WithTaskBuffer sets the per-session inbound task queue size.
func WithTaskBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.taskBuffer = n
		}
	}
}

// WithAudioBuffer sets the per-session audio channel size used while a
// transcription stream is active.
func WithAudioBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.audioBuffer = n
		}
	}
}

// WithPartialThreshold sets the number of buffered audio bytes a stream must
// exceed before it emits a partial transcription.
func WithPartialThreshold(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.partialThreshold = n
		}
	}
}

// WithMetrics overrides the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// ── Manager ───────────────────────────────────────────────────────────────────

// Manager owns the session table. Construct with [NewManager] and start the
// event loop with [Manager.Run]; every other method blocks until Run is
// serving or ctx is done.
type Manager struct {
	translator  Translator
	transcriber Transcriber
	metrics     *observe.Metrics
	now         func() time.Time

	sendBuffer       int
	taskBuffer       int
	audioBuffer      int
	partialThreshold int

	cmds    chan func(*table)
	stopped chan struct{}

	// runCtx is the context tasks run under. It is set once by Run before
	// the loop accepts commands.
	runCtx context.Context

	// workers tracks writer, worker and stream goroutines.
	workers sync.WaitGroup
}

// NewManager returns a Manager that routes translate requests to tr.
func NewManager(tr Translator, opts ...Option) *Manager {
	m := &Manager{
		translator:       tr,
		now:              time.Now,
		sendBuffer:       DefaultSendBuffer,
		taskBuffer:       DefaultTaskBuffer,
		audioBuffer:      DefaultAudioBuffer,
		partialThreshold: DefaultPartialThreshold,
		cmds:             make(chan func(*table)),
		stopped:          make(chan struct{}),
		runCtx:           context.Background(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Run serves commands until ctx is cancelled. On return every session has
// been disconnected. Run must be called exactly once.
func (m *Manager) Run(ctx context.Context) error {
	m.runCtx = context.WithoutCancel(ctx)
	t := &table{
		m:        m,
		sessions: make(map[string]*liveSession),
		groups: map[string]map[string]struct{}{
			GroupActive:     {},
			GroupListening:  {},
			GroupProcessing: {},
		},
	}

	for {
		select {
		case fn := <-m.cmds:
			fn(t)
		case <-ctx.Done():
			for _, id := range t.ids() {
				t.disconnect(id, nil, "server shutting down")
			}
			close(m.stopped)
			m.workers.Wait()
			return nil
		}
	}
}

// exec runs fn on the event loop and waits for it to finish.
func (m *Manager) exec(ctx context.Context, fn func(*table)) error {
	done := make(chan struct{})
	cmd := func(t *table) {
		defer close(done)
		fn(t)
	}
	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

// Connect registers conn under id, sends connection_established to it and
// announces it to every active session.
func (m *Manager) Connect(ctx context.Context, id string, conn Conn) error {
	_, err := m.Attach(ctx, id, conn)
	return err
}

// Attach is [Manager.Connect] for transports that own conn for its whole
// lifetime. The returned [Handle] scopes Dispatch and Disconnect to this one
// connection.
func (m *Manager) Attach(ctx context.Context, id string, conn Conn) (*Handle, error) {
	var (
		s   *liveSession
		err error
	)
	if execErr := m.exec(ctx, func(t *table) { s, err = t.connect(id, conn) }); execErr != nil {
		return nil, execErr
	}
	if err != nil {
		return nil, err
	}
	return &Handle{m: m, s: s}, nil
}

// Disconnect removes the session, stops its goroutines, closes its transport
// and announces the departure. Unknown ids are ignored.
func (m *Manager) Disconnect(ctx context.Context, id string) {
	_ = m.exec(ctx, func(t *table) { t.disconnect(id, nil, "disconnected") })
}

// Dispatch decodes one inbound frame and queues it on the session's worker.
// Malformed frames are answered with an error frame. A full task queue is
// answered with an error frame and reported as [ErrBusy].
func (m *Manager) Dispatch(ctx context.Context, id string, raw []byte) error {
	return m.dispatch(ctx, id, nil, raw)
}

func (m *Manager) dispatch(ctx context.Context, id string, only *liveSession, raw []byte) error {
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if decodeErr == nil && env.Type == "" {
		decodeErr = errors.New("missing type")
	}
	if decodeErr == nil {
		m.metrics.RecordWSMessage(ctx, env.Type)
	}

	var err error
	execErr := m.exec(ctx, func(t *table) {
		s, ok := t.sessions[id]
		if !ok || (only != nil && s != only) {
			err = ErrSessionNotFound
			return
		}
		s.touch(t.m.now())
		if decodeErr != nil {
			t.sendEncoded(s, errorMessage("Invalid message format"))
			return
		}
		select {
		case s.tasks <- task{typ: env.Type, data: env.Data}:
		default:
			err = ErrBusy
			t.sendEncoded(s, errorMessage("session busy"))
		}
	})
	if execErr != nil {
		return execErr
	}
	return err
}

// Handle ties a transport to the session instance it was attached as. Once
// that instance is gone both methods are no-ops, even if a new connection has
// since been attached under the same id.
type Handle struct {
	m *Manager
	s *liveSession
}

// Dispatch is [Manager.Dispatch] for this connection only. It reports
// [ErrSessionNotFound] once the session has been replaced or removed.
func (h *Handle) Dispatch(ctx context.Context, raw []byte) error {
	return h.m.dispatch(ctx, h.s.id, h.s, raw)
}

// Disconnect is [Manager.Disconnect] for this connection only.
func (h *Handle) Disconnect(ctx context.Context) {
	_ = h.m.exec(ctx, func(t *table) { t.disconnect(h.s.id, h.s, "disconnected") })
}

// SendPersonal delivers msg to one session. Absent sessions are ignored.
func (m *Manager) SendPersonal(ctx context.Context, id string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("session: encode message failed", "type", msg.Type(), "err", err)
		return
	}
	_ = m.exec(ctx, func(t *table) {
		s, ok := t.sessions[id]
		if !ok {
			slog.Debug("session: dropping message for absent session", "session_id", id, "type", msg.Type())
			return
		}
		t.send(s, data)
	})
}

// BroadcastToGroup delivers msg to every member of group and returns the
// number of successful deliveries. Members whose delivery fails are
// disconnected.
func (m *Manager) BroadcastToGroup(ctx context.Context, group string, msg Message) int {
	var n int
	_ = m.exec(ctx, func(t *table) { n = t.broadcast(group, msg) })
	return n
}

// SetStatus moves the session between the listening and processing groups
// and announces the change to every active session.
func (m *Manager) SetStatus(ctx context.Context, id, status string) {
	_ = m.exec(ctx, func(t *table) { t.setStatus(id, status) })
}

// CleanupInactive disconnects every session idle for longer than timeout and
// returns how many were disconnected.
func (m *Manager) CleanupInactive(ctx context.Context, timeout time.Duration) int {
	var n int
	_ = m.exec(ctx, func(t *table) {
		cutoff := t.m.now().Add(-timeout)
		for _, id := range t.ids() {
			if s := t.sessions[id]; s != nil && s.lastActivity.Before(cutoff) {
				slog.Info("session: disconnecting inactive session", "session_id", id, "idle_since", s.lastActivity)
				t.disconnect(id, nil, "inactive")
				n++
			}
		}
	})
	return n
}

// PingAll sends a ping to every session and returns the number still live
// afterwards.
func (m *Manager) PingAll(ctx context.Context) int {
	var n int
	_ = m.exec(ctx, func(t *table) {
		msg := timestamped("ping", t.m.now().UTC())
		for _, id := range t.ids() {
			if s := t.sessions[id]; s != nil {
				t.sendEncoded(s, msg)
			}
		}
		n = len(t.sessions)
	})
	return n
}

// SendSystemNotification broadcasts a system_notification to every active
// session and returns the number of deliveries.
func (m *Manager) SendSystemNotification(ctx context.Context, text, level string) int {
	return m.BroadcastToGroup(ctx, GroupActive, Notification(text, level, m.now().UTC()))
}

// Stats summarises the session table.
func (m *Manager) Stats(ctx context.Context) Stats {
	st := Stats{GroupCounts: map[string]int{}}
	_ = m.exec(ctx, func(t *table) {
		now := t.m.now()
		st.TotalActive = len(t.sessions)
		for g, members := range t.groups {
			st.GroupCounts[g] = len(members)
		}
		var total time.Duration
		for _, s := range t.sessions {
			total += now.Sub(s.connectedAt)
			if st.OldestConnection == nil || s.connectedAt.Before(*st.OldestConnection) {
				at := s.connectedAt
				st.OldestConnection = &at
			}
		}
		if len(t.sessions) > 0 {
			st.AverageSessionDuration = total.Seconds() / float64(len(t.sessions))
		}
	})
	return st
}

// ActiveSessions lists the live sessions ordered by connection time.
func (m *Manager) ActiveSessions(ctx context.Context) []Info {
	var out []Info
	_ = m.exec(ctx, func(t *table) {
		out = make([]Info, 0, len(t.sessions))
		for id, s := range t.sessions {
			out = append(out, Info{
				SessionID:    id,
				Status:       s.status,
				ConnectedAt:  s.connectedAt,
				LastActivity: s.lastActivity,
				Groups:       t.groupsOf(id),
			})
		}
	})
	slices.SortFunc(out, func(a, b Info) int {
		return cmp.Or(a.ConnectedAt.Compare(b.ConnectedAt), cmp.Compare(a.SessionID, b.SessionID))
	})
	return out
}

// ── Event loop state ──────────────────────────────────────────────────────────

// table is the session state. It is only touched from the event loop.
type table struct {
	m        *Manager
	sessions map[string]*liveSession
	groups   map[string]map[string]struct{}
}

type task struct {
	typ  string
	data json.RawMessage
}

type liveSession struct {
	id           string
	conn         Conn
	status       string
	connectedAt  time.Time
	lastActivity time.Time

	out   chan []byte
	tasks chan task
	quit  chan struct{}
}

// touch refreshes last activity without ever moving it backwards.
func (s *liveSession) touch(now time.Time) {
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

func (t *table) ids() []string {
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (t *table) groupsOf(id string) []string {
	var gs []string
	for g, members := range t.groups {
		if _, ok := members[id]; ok {
			gs = append(gs, g)
		}
	}
	slices.Sort(gs)
	return gs
}

func (t *table) connect(id string, conn Conn) (*liveSession, error) {
	if id == "" {
		return nil, fmt.Errorf("session: empty session id")
	}
	if _, ok := t.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	now := t.m.now()
	s := &liveSession{
		id:           id,
		conn:         conn,
		status:       StatusConnected,
		connectedAt:  now,
		lastActivity: now,
		out:          make(chan []byte, t.m.sendBuffer),
		tasks:        make(chan task, t.m.taskBuffer),
		quit:         make(chan struct{}),
	}
	t.sessions[id] = s
	t.groups[GroupActive][id] = struct{}{}
	t.m.metrics.ActiveSessions.Add(t.m.runCtx, 1)

	t.m.workers.Add(2)
	go t.m.writeLoop(s)
	go t.m.workLoop(s)

	slog.Info("session: connected", "session_id", id)
	t.sendEncoded(s, Message{
		"type":       "connection_established",
		"session_id": id,
		"timestamp":  now.UTC(),
		"message":    "Connected to Jargonaut",
	})
	t.broadcast(GroupActive, Message{
		"type":         "session_connected",
		"session_id":   id,
		"total_active": len(t.sessions),
	})
	return s, nil
}

// disconnect removes id. When only is non-nil the session is removed only if
// it is still that instance, so a late failure from a replaced connection
// cannot evict its successor.
func (t *table) disconnect(id string, only *liveSession, reason string) {
	s, ok := t.sessions[id]
	if !ok || (only != nil && s != only) {
		return
	}
	delete(t.sessions, id)
	for _, members := range t.groups {
		delete(members, id)
	}
	close(s.quit)
	t.m.metrics.ActiveSessions.Add(t.m.runCtx, -1)
	slog.Info("session: disconnected", "session_id", id, "reason", reason,
		"duration", t.m.now().Sub(s.connectedAt).Round(time.Millisecond))

	t.broadcast(GroupActive, Message{
		"type":         "session_disconnected",
		"session_id":   id,
		"total_active": len(t.sessions),
	})
}

func (t *table) setStatus(id, status string) {
	s, ok := t.sessions[id]
	if !ok {
		return
	}
	delete(t.groups[GroupListening], id)
	delete(t.groups[GroupProcessing], id)
	if status == GroupListening || status == GroupProcessing {
		t.groups[status][id] = struct{}{}
	}
	s.status = status
	now := t.m.now()
	s.touch(now)
	t.broadcast(GroupActive, Message{
		"type":       "session_status_change",
		"session_id": id,
		"status":     status,
		"timestamp":  now.UTC(),
	})
}

func (t *table) broadcast(group string, msg Message) int {
	members, ok := t.groups[group]
	if !ok {
		slog.Warn("session: broadcast to unknown group", "group", group)
		return 0
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("session: encode broadcast failed", "type", msg.Type(), "err", err)
		return 0
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var n int
	for _, id := range ids {
		// A failed delivery earlier in this loop may already have removed id.
		if s, ok := t.sessions[id]; ok && t.send(s, data) {
			n++
		}
	}
	return n
}

func (t *table) sendEncoded(s *liveSession, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("session: encode message failed", "type", msg.Type(), "err", err)
		return false
	}
	return t.send(s, data)
}

// send queues data for s. A full queue disconnects the session.
func (t *table) send(s *liveSession, data []byte) bool {
	select {
	case s.out <- data:
		s.touch(t.m.now())
		return true
	default:
		slog.Warn("session: outbound queue full", "session_id", s.id)
		t.disconnect(s.id, s, "send queue full")
		return false
	}
}

// ── Per-session goroutines ────────────────────────────────────────────────────

// writeTimeout bounds a single transport write.
const writeTimeout = 10 * time.Second

// writeLoop drains the outbound queue into the transport. It closes the
// transport once the session quits.
func (m *Manager) writeLoop(s *liveSession) {
	defer m.workers.Done()
	for {
		select {
		case <-s.quit:
			if err := s.conn.Close("session closed"); err != nil {
				slog.Debug("session: close transport", "session_id", s.id, "err", err)
			}
			return
		case data := <-s.out:
			ctx, cancel := context.WithTimeout(m.runCtx, writeTimeout)
			err := s.conn.Write(ctx, data)
			cancel()
			if err != nil {
				slog.Warn("session: write failed", "session_id", s.id, "err", err)
				m.dropAsync(s, "write failed")
				<-s.quit
				_ = s.conn.Close("write failed")
				return
			}
		}
	}
}

// dropAsync asks the event loop to disconnect s without waiting for it.
func (m *Manager) dropAsync(s *liveSession, reason string) {
	go func() {
		_ = m.exec(context.Background(), func(t *table) { t.disconnect(s.id, s, reason) })
	}()
}

// workLoop runs queued tasks for one session in arrival order. Tasks already
// running when the session quits complete; their sends become no-ops.
func (m *Manager) workLoop(s *liveSession) {
	defer m.workers.Done()
	w := &worker{m: m, id: s.id, quit: s.quit}
	defer w.closeStream()
	for {
		select {
		case <-s.quit:
			return
		case tk := <-s.tasks:
			w.handle(m.runCtx, tk)
		}
	}
}
