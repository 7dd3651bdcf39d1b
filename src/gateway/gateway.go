// Package gateway maintains the persistent event connection.
//
// A Gateway owns one session and runs it on a single event loop (Run). The loop
// reads frames, fires the heartbeat timer and invokes callbacks, so session state,
// the entity cache and callbacks never see two frames at once. Outbound frames go
// through a FIFO drained by a write pump, one frame per writable notification.
// Everything except heartbeats counts against a sliding send window; frames over
// the window are dropped rather than queued.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	windowrate "github.com/beefsack/go-rate"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"personal/discord_client/src/cache"
	"personal/discord_client/src/entity"
	"personal/discord_client/src/opcodes"
	"personal/discord_client/src/snowflake"
	"personal/discord_client/src/store"
)

const (
	// MinHeartbeatInterval is the smallest interval a HELLO may ask for.
	MinHeartbeatInterval = 10 * time.Second

	DefaultSendLimit             = 110
	DefaultSendWindow            = 60 * time.Second
	DefaultReconnectInitialDelay = 3 * time.Second
	DefaultReconnectMaxDelay     = 60 * time.Second

	apiVersion  = "9"
	persistWait = 5 * time.Second
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateResuming
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateResuming:
		return "resuming"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	}
	return "unknown"
}

// Discovery looks up the gateway URL and the session start quota.
type Discovery interface {
	GetBotGateway(ctx context.Context) (*entity.GatewayBot, error)
}

type Config struct {
	Token string
	// URL of the gateway. Discovery is still asked before every fresh IDENTIFY to
	// check the session-start quota, and its URL replaces this one. URL is used
	// when Discovery is nil or fails.
	URL       string
	Discovery Discovery

	Intents        int
	Compress       bool
	LargeThreshold int
	Presence       *entity.Presence

	SendLimit  int
	SendWindow time.Duration

	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	// MaxReconnectAttempts bounds consecutive failed dials. Zero means unlimited.
	MaxReconnectAttempts int

	Cache      *cache.Cache
	Store      store.Store
	SessionKey string

	Dialer   Dialer
	Handlers Handlers

	// Jitter returns the fraction of the heartbeat interval to wait before the first
	// beat. Defaults to a random value in [0, 0.5).
	Jitter func() float64
}

type session struct {
	state             State
	connected         bool
	resume            bool
	sessionID         string
	sequence          int64
	resumeURL         string
	heartbeatInterval time.Duration
	awaitingAck       bool
	lastHeartbeat     time.Time
	latency           time.Duration
	selfID            snowflake.Snowflake
}

type Gateway struct {
	cfg      Config
	logger   *slog.Logger
	cache    *cache.Cache
	dialer   Dialer
	handlers Handlers
	jitter   func() float64
	backoff  *backoff.ExponentialBackOff
	metrics  gatewayMetrics

	mu         sync.Mutex
	sess       session
	presence   *entity.Presence
	gatewayURL string
	limiter    *windowrate.RateLimiter

	queue *sendQueue

	// Owned by the event loop.
	heartbeat   *time.Timer
	established bool

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

var (
	errReconnectRequested = errors.New("server requested reconnect")
	errZombie             = errors.New("heartbeat not acknowledged")
)

func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("gateway: token is required")
	}
	if cfg.URL == "" && cfg.Discovery == nil {
		return nil, fmt.Errorf("gateway: either a URL or a discovery source is required")
	}
	if cfg.Presence != nil {
		if err := cfg.Presence.Validate(); err != nil {
			return nil, fmt.Errorf("gateway: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	if cfg.SendLimit <= 0 {
		cfg.SendLimit = DefaultSendLimit
	}
	if cfg.SendWindow <= 0 {
		cfg.SendWindow = DefaultSendWindow
	}
	if cfg.ReconnectInitialDelay <= 0 {
		cfg.ReconnectInitialDelay = DefaultReconnectInitialDelay
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectInitialDelay {
		cfg.ReconnectMaxDelay = max(DefaultReconnectMaxDelay, cfg.ReconnectInitialDelay)
	}
	if cfg.LargeThreshold <= 0 {
		cfg.LargeThreshold = 50
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = "default"
	}

	c := cfg.Cache
	if c == nil {
		c = cache.New(cache.Config{}, logger)
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &WebsocketDialer{}
	}
	jitter := cfg.Jitter
	if jitter == nil {
		jitter = func() float64 { return rand.Float64() * 0.5 }
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.ReconnectInitialDelay,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         cfg.ReconnectMaxDelay,
	}
	b.Reset()

	metrics, err := newGatewayMetrics()
	if err != nil {
		return nil, err
	}

	return &Gateway{
		cfg:        cfg,
		logger:     logger,
		cache:      c,
		dialer:     dialer,
		handlers:   cfg.Handlers,
		jitter:     jitter,
		backoff:    b,
		metrics:    metrics,
		presence:   cfg.Presence,
		gatewayURL: cfg.URL,
		limiter:    windowrate.New(cfg.SendLimit, cfg.SendWindow),
		queue:      newSendQueue(),
		stop:       make(chan struct{}),
		sess:       session{state: StateDisconnected},
	}, nil
}

// Cache returns the entity cache the gateway populates.
func (g *Gateway) Cache() *cache.Cache {
	return g.cache
}

// Run connects and processes events until ctx is cancelled, Disconnect is called,
// or the session fails fatally. Lost connections are re-established with
// exponential backoff, resuming the session when possible.
//
// Cancelling ctx closes the connection resumably and keeps the stored snapshot, so
// a later Run (possibly in another process) can RESUME. Disconnect ends the session.
func (g *Gateway) Run(ctx context.Context) error {
	select {
	case <-g.stop:
		return ErrClosed
	default:
	}
	if !g.running.CompareAndSwap(false, true) {
		return errors.New("gateway: already running")
	}
	defer g.running.Store(false)

	g.restoreSession(ctx)

	failures := 0
	for {
		err := g.runOnce(ctx)

		if errors.Is(err, ErrClosed) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var protoErr *ProtocolError
		var limitErr *SessionLimitError
		if errors.As(err, &protoErr) || errors.As(err, &limitErr) {
			g.logger.Error("Gateway session failed", "error", err)
			return err
		}

		if g.established {
			g.established = false
			failures = 0
			g.backoff.Reset()
		}

		var dialErr *dialError
		if errors.As(err, &dialErr) {
			failures++
			if g.cfg.MaxReconnectAttempts > 0 && failures >= g.cfg.MaxReconnectAttempts {
				return fmt.Errorf("gateway: giving up after %d failed connection attempts: %w", failures, err)
			}
		}

		delay := g.backoff.NextBackOff()
		g.metrics.reconnects.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reconnectReason(err))))
		g.logger.Warn("Connection lost, reconnecting", "error", err, "delay", delay, "resume", g.Resumable())

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-g.stop:
			timer.Stop()
			g.endSession()
			return nil
		}
	}
}

// Disconnect ends the session: the connection is closed with a normal close code,
// queued frames are discarded and the stored snapshot is removed. Run returns nil.
// The Gateway cannot be reused afterwards.
func (g *Gateway) Disconnect() {
	g.stopOnce.Do(func() {
		close(g.stop)
		if !g.running.Load() {
			g.endSession()
		}
	})
}

func (g *Gateway) runOnce(ctx context.Context) error {
	log := g.logger.With("connection_id", uuid.NewString())

	endpoint, err := g.endpoint(ctx, log)
	if err != nil {
		return err
	}

	g.setState(StateConnecting)
	conn, err := g.dialer.Dial(ctx, endpoint)
	if err != nil {
		g.setState(StateDisconnected)
		return &dialError{err: err}
	}

	g.mu.Lock()
	g.sess.connected = true
	g.sess.awaitingAck = false
	g.sess.state = StateAwaitingHello
	g.limiter = windowrate.New(g.cfg.SendLimit, g.cfg.SendWindow)
	g.mu.Unlock()
	log.Info("Connected to gateway", "url", endpoint)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	writeErr := make(chan error, 1)
	go readLoop(connCtx, conn, frames, readErr)
	go writePump(connCtx, conn, g.queue, g.queue.currentEpoch(), writeErr)

	for {
		var beat <-chan time.Time
		if g.heartbeat != nil {
			beat = g.heartbeat.C
		}

		select {
		case <-ctx.Done():
			g.teardown(conn, cancel, true, log)
			return ctx.Err()

		case <-g.stop:
			g.teardown(conn, cancel, false, log)
			return ErrClosed

		case data := <-frames:
			reconnect, err := g.handleFrame(data, log)
			if err != nil {
				g.teardown(conn, cancel, false, log)
				return err
			}
			if reconnect {
				g.teardown(conn, cancel, g.Resumable(), log)
				return errReconnectRequested
			}

		case <-beat:
			if !g.heartbeatTick(log) {
				g.teardown(conn, cancel, true, log)
				return errZombie
			}

		case err := <-readErr:
			var closeErr *CloseError
			if errors.As(err, &closeErr) {
				if closeErr.Fatal() {
					g.teardown(conn, cancel, false, log)
					return &ProtocolError{Reason: "connection closed by server", Err: closeErr}
				}
				g.teardown(conn, cancel, closeErr.Resumable(), log)
				return closeErr
			}
			g.teardown(conn, cancel, true, log)
			return fmt.Errorf("read: %w", err)

		case err := <-writeErr:
			g.teardown(conn, cancel, true, log)
			return fmt.Errorf("write: %w", err)
		}
	}
}

func readLoop(ctx context.Context, conn Conn, frames chan<- []byte, errCh chan<- error) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// teardown ends the current connection. Queued frames are discarded, never sent.
// Session identity survives only when resume is set.
func (g *Gateway) teardown(conn Conn, stopIO context.CancelFunc, resume bool, log *slog.Logger) {
	g.stopHeartbeat()
	g.setState(StateDisconnecting)

	stopIO()
	dropped := g.queue.clear()

	code := opcodes.CloseNormal
	if resume {
		code = opcodes.CloseResumable
	}
	if err := conn.Close(code); err != nil {
		log.Debug("Error closing connection", "error", err)
	}

	g.mu.Lock()
	g.sess.connected = false
	g.sess.awaitingAck = false
	g.sess.resume = resume
	g.sess.state = StateDisconnected
	if !resume {
		g.sess.sessionID = ""
		g.sess.sequence = 0
		g.sess.resumeURL = ""
	}
	g.mu.Unlock()

	g.persist()
	log.Info("Disconnected from gateway", "close_code", code, "resume", resume, "dropped_frames", dropped)
}

// endSession forgets the session without a live connection.
func (g *Gateway) endSession() {
	g.queue.clear()

	g.mu.Lock()
	g.sess.resume = false
	g.sess.sessionID = ""
	g.sess.sequence = 0
	g.sess.resumeURL = ""
	g.sess.state = StateDisconnected
	g.mu.Unlock()

	g.persist()
}

// endpoint picks the URL for the next connection: the resume URL when resuming,
// otherwise the (possibly freshly discovered) gateway URL.
func (g *Gateway) endpoint(ctx context.Context, log *slog.Logger) (string, error) {
	g.mu.Lock()
	resume := g.sess.resume && g.sess.sessionID != ""
	resumeURL := g.sess.resumeURL
	base := g.gatewayURL
	g.mu.Unlock()

	if resume && resumeURL != "" {
		return withGatewayQuery(resumeURL)
	}

	if !resume && g.cfg.Discovery != nil {
		info, err := g.cfg.Discovery.GetBotGateway(ctx)
		switch {
		case err != nil && base == "":
			return "", &dialError{err: fmt.Errorf("gateway discovery: %w", err)}
		case err != nil:
			log.Warn("Gateway discovery failed, using last known URL", "error", err)
		default:
			limit := info.SessionStartLimit
			if limit.Total > 0 && limit.Remaining == 0 {
				log.Error("No session starts left", "reset_after", limit.ResetIn())
				return "", &SessionLimitError{ResetAfter: limit.ResetIn()}
			}
			log.Debug("Discovered gateway", "url", info.URL, "shards", info.Shards, "session_starts_remaining", limit.Remaining)
			base = info.URL
			g.mu.Lock()
			g.gatewayURL = base
			g.mu.Unlock()
		}
	}

	return withGatewayQuery(base)
}

func withGatewayQuery(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", &dialError{err: fmt.Errorf("invalid gateway url %q: %w", raw, err)}
	}
	if u.Path == "" {
		u.Path = "/"
	}
	if u.RawQuery == "" {
		u.RawQuery = "v=" + apiVersion + "&encoding=json"
	}
	return u.String(), nil
}

func (g *Gateway) handleFrame(data []byte, log *slog.Logger) (reconnect bool, err error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return false, &ProtocolError{Reason: "malformed frame", Err: err}
	}

	switch f.Op {
	case opcodes.Hello:
		return false, g.handleHello(f.D, log)

	case opcodes.Dispatch:
		return false, g.handleDispatch(f, log)

	case opcodes.Heartbeat:
		log.Debug("Server requested heartbeat")
		g.stopHeartbeat()
		g.mu.Lock()
		// The server asked, so an outstanding ack does not make this a zombie.
		g.sess.awaitingAck = false
		interval := g.sess.heartbeatInterval
		g.mu.Unlock()
		g.sendHeartbeat()
		if interval > 0 {
			g.armHeartbeat(interval)
		}

	case opcodes.HeartbeatACK:
		g.mu.Lock()
		g.sess.awaitingAck = false
		g.sess.latency = time.Since(g.sess.lastHeartbeat)
		latency := g.sess.latency
		g.mu.Unlock()
		g.metrics.latency.Record(context.Background(), latency.Seconds())
		log.Debug("Heartbeat acknowledged", "latency", latency)

	case opcodes.Reconnect:
		log.Info("Server requested reconnect")
		g.mu.Lock()
		g.sess.resume = true
		g.mu.Unlock()
		return true, nil

	case opcodes.InvalidSession:
		var resumable bool
		if len(f.D) > 0 {
			if err := json.Unmarshal(f.D, &resumable); err != nil {
				log.Debug("Could not decode invalid session payload", "error", err)
			}
		}
		log.Warn("Session invalidated", "resumable", resumable)
		g.mu.Lock()
		g.sess.resume = resumable
		g.mu.Unlock()
		return true, nil

	default:
		log.Debug("Ignoring frame", "op", int(f.Op), "name", f.Op.String())
	}
	return false, nil
}

func (g *Gateway) handleHello(raw json.RawMessage, log *slog.Logger) error {
	var hello helloData
	if err := json.Unmarshal(raw, &hello); err != nil {
		return &ProtocolError{Reason: "malformed HELLO", Err: err}
	}

	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	if interval < MinHeartbeatInterval {
		return &ProtocolError{Reason: fmt.Sprintf("heartbeat interval %s is below the %s minimum", interval, MinHeartbeatInterval)}
	}

	g.mu.Lock()
	g.sess.heartbeatInterval = interval
	resume := g.sess.resume && g.sess.sessionID != ""
	if resume {
		g.sess.state = StateResuming
	} else {
		g.sess.state = StateIdentifying
	}
	g.mu.Unlock()

	first := time.Duration(float64(interval) * g.jitter())
	g.armHeartbeat(first)
	log.Debug("Received HELLO", "heartbeat_interval", interval, "first_heartbeat", first, "resume", resume)

	if resume {
		return g.sendResume()
	}
	return g.sendIdentify()
}

func (g *Gateway) sendIdentify() error {
	g.mu.Lock()
	data := identifyData{
		Token: g.cfg.Token,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "discord_client",
			Device:  "discord_client",
		},
		Compress:       g.cfg.Compress,
		LargeThreshold: g.cfg.LargeThreshold,
		Shard:          [2]int{0, 1},
		Presence:       g.presence,
		Intents:        g.cfg.Intents,
	}
	g.mu.Unlock()

	_, err := g.send(opcodes.Identify, data, false)
	return err
}

func (g *Gateway) sendResume() error {
	g.mu.Lock()
	data := resumeData{
		Token:     g.cfg.Token,
		SessionID: g.sess.sessionID,
		Sequence:  g.sess.sequence,
	}
	g.mu.Unlock()

	_, err := g.send(opcodes.Resume, data, false)
	return err
}

func (g *Gateway) handleDispatch(f Frame, log *slog.Logger) error {
	g.mu.Lock()
	if f.S != nil && *f.S > g.sess.sequence {
		g.sess.sequence = *f.S
	}
	selfID := g.sess.selfID
	g.mu.Unlock()

	name := ""
	if f.T != nil {
		name = *f.T
	}
	g.metrics.dispatches.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", name)))

	ev, err := decodeEvent(name, f.D, g.cache, selfID)
	if err != nil {
		if name == "READY" {
			return &ProtocolError{Reason: "malformed READY", Err: err}
		}
		log.Warn("Dropping event that could not be decoded", "event", name, "error", err)
		return nil
	}

	switch e := ev.(type) {
	case *Ready:
		g.mu.Lock()
		g.sess.sessionID = e.SessionID
		g.sess.resumeURL = e.ResumeGatewayURL
		g.sess.selfID = e.User.ID
		g.sess.state = StateConnected
		g.mu.Unlock()
		g.established = true
		g.persist()
		log.Info("Session ready", "session_id", e.SessionID, "user", e.User.Username, "guilds", len(e.Guilds))

	case *Resumed:
		g.mu.Lock()
		g.sess.state = StateConnected
		g.mu.Unlock()
		g.established = true
		g.persist()
		log.Info("Session resumed")
	}

	g.handlers.dispatch(ev)
	return nil
}

// heartbeatTick reports false when the previous beat was never acknowledged.
func (g *Gateway) heartbeatTick(log *slog.Logger) bool {
	g.mu.Lock()
	zombie := g.sess.awaitingAck
	interval := g.sess.heartbeatInterval
	if zombie {
		g.sess.resume = true
	}
	g.mu.Unlock()

	if zombie {
		log.Warn("No heartbeat ACK since the last beat, treating connection as zombie")
		return false
	}

	g.sendHeartbeat()
	g.armHeartbeat(interval)
	return true
}

func (g *Gateway) sendHeartbeat() {
	g.mu.Lock()
	var seq any
	if g.sess.sequence > 0 {
		seq = g.sess.sequence
	}
	g.sess.awaitingAck = true
	g.sess.lastHeartbeat = time.Now()
	g.mu.Unlock()

	if _, err := g.send(opcodes.Heartbeat, seq, true); err != nil {
		g.logger.Error("Failed to queue heartbeat", "error", err)
		return
	}
	g.metrics.heartbeats.Add(context.Background(), 1)
}

func (g *Gateway) armHeartbeat(d time.Duration) {
	g.stopHeartbeat()
	g.heartbeat = time.NewTimer(d)
}

func (g *Gateway) stopHeartbeat() {
	if g.heartbeat != nil {
		g.heartbeat.Stop()
		g.heartbeat = nil
	}
}

// send serializes and queues one frame. It returns false without an error when
// the frame was not queued because the gateway is not connected or the send
// window is exhausted.
func (g *Gateway) send(op opcodes.Opcode, d any, heartbeat bool) (bool, error) {
	payload, err := json.Marshal(outFrame{Op: op, D: d})
	if err != nil {
		return false, fmt.Errorf("could not marshal %s payload: %w", op, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.sess.connected {
		g.logger.Debug("Not connected, frame not sent", "op", op.String())
		return false, nil
	}
	if !heartbeat {
		if ok, _ := g.limiter.Try(); !ok {
			g.logger.Warn("Send window exhausted, dropping frame", "op", op.String(), "limit", g.cfg.SendLimit, "window", g.cfg.SendWindow)
			g.metrics.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op.String())))
			return false, nil
		}
	}

	g.queue.push(payload)
	return true, nil
}

// Send queues an arbitrary command frame.
func (g *Gateway) Send(op opcodes.Opcode, d any) (bool, error) {
	return g.send(op, d, op == opcodes.Heartbeat)
}

// UpdatePresence sends a presence update and uses it for future IDENTIFYs.
func (g *Gateway) UpdatePresence(p entity.Presence) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	g.mu.Lock()
	g.presence = &p
	g.mu.Unlock()

	return g.send(opcodes.PresenceUpdate, p, false)
}

func (g *Gateway) RequestGuildMembers(req RequestGuildMembers) (bool, error) {
	if req.GuildID.IsZero() {
		return false, errors.New("guild id is required")
	}
	if req.Query == nil && len(req.UserIDs) == 0 {
		empty := ""
		req.Query = &empty
	}
	return g.send(opcodes.RequestGuildMembers, req, false)
}

func (g *Gateway) UpdateVoiceState(vs VoiceStateUpdate) (bool, error) {
	if vs.GuildID.IsZero() {
		return false, errors.New("guild id is required")
	}
	return g.send(opcodes.VoiceStateUpdate, vs, false)
}

func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.state
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	g.sess.state = s
	g.mu.Unlock()
}

func (g *Gateway) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.sessionID
}

func (g *Gateway) Sequence() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.sequence
}

// Resumable reports whether the next connection will try to RESUME.
func (g *Gateway) Resumable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.resume && g.sess.sessionID != ""
}

// Latency is the round trip of the last acknowledged heartbeat.
func (g *Gateway) Latency() (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.sess.connected || g.sess.latency == 0 {
		return 0, ErrNotConnected
	}
	return g.sess.latency, nil
}

// SelfID is the current user's id once READY has been received.
func (g *Gateway) SelfID() snowflake.Snowflake {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.selfID
}

func (g *Gateway) restoreSession(ctx context.Context) {
	if g.cfg.Store == nil {
		return
	}

	snap, err := g.cfg.Store.Load(ctx, g.cfg.SessionKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Warn("Could not load session snapshot", "error", err)
		}
		return
	}

	g.mu.Lock()
	g.sess.sessionID = snap.SessionID
	g.sess.sequence = snap.Sequence
	g.sess.resumeURL = snap.ResumeURL
	g.sess.resume = snap.SessionID != ""
	g.mu.Unlock()
	g.logger.Info("Restored session snapshot", "session_id", snap.SessionID, "sequence", snap.Sequence, "saved_at", snap.UpdatedAt)
}

// persist writes the current session to the store, or removes it when the session
// is not resumable.
func (g *Gateway) persist() {
	if g.cfg.Store == nil {
		return
	}

	g.mu.Lock()
	keep := g.sess.sessionID != "" && (g.sess.resume || g.sess.connected)
	snap := store.Snapshot{
		SessionID: g.sess.sessionID,
		Sequence:  g.sess.sequence,
		ResumeURL: g.sess.resumeURL,
	}
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistWait)
	defer cancel()

	var err error
	if keep {
		err = g.cfg.Store.Save(ctx, g.cfg.SessionKey, snap)
	} else {
		err = g.cfg.Store.Delete(ctx, g.cfg.SessionKey)
	}
	if err != nil {
		g.logger.Warn("Could not persist session snapshot", "error", err)
	}
}

type gatewayMetrics struct {
	dispatches metric.Int64Counter
	heartbeats metric.Int64Counter
	reconnects metric.Int64Counter
	dropped    metric.Int64Counter
	latency    metric.Float64Histogram
}

func newGatewayMetrics() (gatewayMetrics, error) {
	meter := otel.Meter("discord_client/gateway")
	var m gatewayMetrics
	var err error

	if m.dispatches, err = meter.Int64Counter("gateway.dispatches",
		metric.WithDescription("Number of dispatch events received, by event name"),
		metric.WithUnit("{event}")); err != nil {
		return m, err
	}
	if m.heartbeats, err = meter.Int64Counter("gateway.heartbeats",
		metric.WithDescription("Number of heartbeats sent"),
		metric.WithUnit("{heartbeat}")); err != nil {
		return m, err
	}
	if m.reconnects, err = meter.Int64Counter("gateway.reconnects",
		metric.WithDescription("Number of reconnects, by reason"),
		metric.WithUnit("{reconnect}")); err != nil {
		return m, err
	}
	if m.dropped, err = meter.Int64Counter("gateway.sends.dropped",
		metric.WithDescription("Number of outbound frames dropped by the send window"),
		metric.WithUnit("{frame}")); err != nil {
		return m, err
	}
	if m.latency, err = meter.Float64Histogram("gateway.heartbeat.latency",
		metric.WithDescription("Heartbeat round trip in seconds"),
		metric.WithUnit("s")); err != nil {
		return m, err
	}
	return m, nil
}

func reconnectReason(err error) string {
	var dialErr *dialError
	var closeErr *CloseError
	switch {
	case errors.Is(err, errZombie):
		return "zombie"
	case errors.Is(err, errReconnectRequested):
		return "requested"
	case errors.As(err, &dialErr):
		return "dial"
	case errors.As(err, &closeErr):
		return "closed"
	default:
		return "transport"
	}
}
