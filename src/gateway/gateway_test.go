package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal/discord_client/src/entity"
	"personal/discord_client/src/opcodes"
	"personal/discord_client/src/store"
)

type sentFrame struct {
	Op opcodes.Opcode  `json:"op"`
	D  json.RawMessage `json:"d"`
}

func newTestGateway(t *testing.T, mutate ...func(*Config)) *Gateway {
	t.Helper()

	cfg := Config{
		Token:   "tok",
		URL:     "ws://gateway.test",
		Intents: 513,
		Jitter:  func() float64 { return 0 },
	}
	for _, m := range mutate {
		m(&cfg)
	}

	g, err := New(cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(g.stopHeartbeat)
	return g
}

// markConnected puts the session in the state it has right after a dial.
func markConnected(g *Gateway) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sess.connected = true
	g.sess.state = StateAwaitingHello
}

// drain pops every queued frame in order.
func drain(t *testing.T, g *Gateway) []sentFrame {
	t.Helper()

	var out []sentFrame
	for {
		raw, ok, _ := g.queue.pop()
		if !ok {
			return out
		}
		var f sentFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
}

func frame(op opcodes.Opcode, name string, seq int64, d string) []byte {
	f := map[string]any{"op": op, "d": json.RawMessage(d)}
	if name != "" {
		f["t"] = name
	}
	if seq > 0 {
		f["s"] = seq
	}
	out, _ := json.Marshal(f)
	return out
}

func handle(t *testing.T, g *Gateway, data []byte) (bool, error) {
	t.Helper()
	return g.handleFrame(data, g.logger)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{URL: "ws://x"}, nil)
	assert.Error(t, err, "token is required")

	_, err = New(Config{Token: "t"}, nil)
	assert.Error(t, err, "url or discovery is required")

	_, err = New(Config{Token: "t", URL: "ws://x", Presence: &entity.Presence{Status: "away"}}, nil)
	assert.Error(t, err, "presence is validated")

	g, err := New(Config{Token: "t", URL: "ws://x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSendLimit, g.cfg.SendLimit)
	assert.Equal(t, DefaultSendWindow, g.cfg.SendWindow)
	assert.Equal(t, StateDisconnected, g.State())
}

func TestHello_Identify(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)

	reconnect, err := handle(t, g, frame(opcodes.Hello, "", 0, `{"heartbeat_interval":41250}`))
	require.NoError(t, err)
	assert.False(t, reconnect)

	assert.NotNil(t, g.heartbeat, "heartbeat timer is armed")
	assert.Equal(t, 41250*time.Millisecond, g.sess.heartbeatInterval)
	assert.Equal(t, StateIdentifying, g.State())

	frames := drain(t, g)
	require.Len(t, frames, 1)
	assert.Equal(t, opcodes.Identify, frames[0].Op)

	var id identifyData
	require.NoError(t, json.Unmarshal(frames[0].D, &id))
	assert.Equal(t, "tok", id.Token)
	assert.Equal(t, 513, id.Intents)
	assert.Equal(t, [2]int{0, 1}, id.Shard)
	assert.Equal(t, "discord_client", id.Properties.Browser)
}

func TestHello_Resume(t *testing.T) {
	g := newTestGateway(t)
	g.sess.sessionID = "abc"
	g.sess.sequence = 42
	g.sess.resume = true
	markConnected(g)

	_, err := handle(t, g, frame(opcodes.Hello, "", 0, `{"heartbeat_interval":41250}`))
	require.NoError(t, err)
	assert.Equal(t, StateResuming, g.State())

	frames := drain(t, g)
	require.Len(t, frames, 1)
	assert.Equal(t, opcodes.Resume, frames[0].Op)
	assert.JSONEq(t, `{"token":"tok","session_id":"abc","seq":42}`, string(frames[0].D))
}

func TestHello_ResumeFlagWithoutSessionIdentifies(t *testing.T) {
	g := newTestGateway(t)
	g.sess.resume = true
	markConnected(g)

	_, err := handle(t, g, frame(opcodes.Hello, "", 0, `{"heartbeat_interval":41250}`))
	require.NoError(t, err)

	frames := drain(t, g)
	require.Len(t, frames, 1)
	assert.Equal(t, opcodes.Identify, frames[0].Op)
}

func TestHello_IntervalBelowMinimum(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)

	_, err := handle(t, g, frame(opcodes.Hello, "", 0, `{"heartbeat_interval":5000}`))
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "below")
	assert.Empty(t, drain(t, g), "nothing is sent after a bad HELLO")
}

func TestMalformedFrame(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)

	_, err := handle(t, g, []byte(`{"op":`))
	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestDispatch_SequenceNeverRegresses(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)

	_, err := handle(t, g, frame(opcodes.Dispatch, "TYPING_START", 5, `{}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), g.Sequence())

	_, err = handle(t, g, frame(opcodes.Dispatch, "TYPING_START", 3, `{}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), g.Sequence())

	_, err = handle(t, g, frame(opcodes.HeartbeatACK, "", 9, `null`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), g.Sequence(), "only dispatches advance the sequence")
}

func TestDispatch_ReadyAndMessages(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	var created *entity.Message
	g := newTestGateway(t, func(c *Config) {
		c.Handlers = Handlers{
			Ready: func(r *Ready) { record("READY:" + r.SessionID) },
			MessageCreate: func(m *MessageCreate) {
				created = m.Message
				record("CREATE:" + m.Message.Content)
			},
			MessageUpdate: func(m *MessageUpdate) { record("UPDATE:" + m.Message.Content) },
			Unknown:       func(u *Unknown) { record("UNKNOWN:" + u.Name) },
			Any:           func(e Event) { record("any:" + e.EventName()) },
		}
	})
	markConnected(g)

	steps := [][]byte{
		frame(opcodes.Dispatch, "READY", 1, `{"v":9,"session_id":"sess","resume_gateway_url":"wss://resume.test","user":{"id":"10","username":"bot"},"guilds":[{"id":"1","unavailable":true}]}`),
		frame(opcodes.Dispatch, "MESSAGE_CREATE", 2, `{"id":"100","channel_id":"5","content":"hi","author":{"id":"11","username":"u"}}`),
		frame(opcodes.Dispatch, "MESSAGE_UPDATE", 3, `{"id":"100","channel_id":"5","content":"edited"}`),
		frame(opcodes.Dispatch, "CHANNEL_PINS_UPDATE", 4, `{"channel_id":"5"}`),
	}
	for _, s := range steps {
		_, err := handle(t, g, s)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"READY:sess", "any:READY",
		"CREATE:hi", "any:MESSAGE_CREATE",
		"UPDATE:edited", "any:MESSAGE_UPDATE",
		"UNKNOWN:CHANNEL_PINS_UPDATE", "any:CHANNEL_PINS_UPDATE",
	}, order)

	assert.Equal(t, "sess", g.SessionID())
	assert.Equal(t, "wss://resume.test", g.sess.resumeURL)
	assert.Equal(t, StateConnected, g.State())
	assert.Equal(t, int64(4), g.Sequence())
	assert.True(t, g.established)

	require.NotNil(t, created)
	assert.Equal(t, "edited", created.Content, "update merged into the created message")
	assert.Same(t, created, g.Cache().Message(100))
}

func TestDispatch_DecodeErrorIsNotFatal(t *testing.T) {
	called := false
	g := newTestGateway(t, func(c *Config) {
		c.Handlers.MessageCreate = func(*MessageCreate) { called = true }
	})
	markConnected(g)

	_, err := handle(t, g, frame(opcodes.Dispatch, "MESSAGE_CREATE", 7, `{"content":"no id"}`))
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, int64(7), g.Sequence())
}

func TestDispatch_MalformedReadyIsFatal(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)

	_, err := handle(t, g, frame(opcodes.Dispatch, "READY", 1, `{"user":{"id":"1","username":"x"}}`))
	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestDispatch_ReactionsAndDeletes(t *testing.T) {
	var reaction *MessageReactionAdd
	var deleted *MessageDelete
	var emojis *GuildEmojisUpdate

	g := newTestGateway(t, func(c *Config) {
		c.Handlers.MessageReactionAdd = func(e *MessageReactionAdd) { reaction = e }
		c.Handlers.MessageDelete = func(e *MessageDelete) { deleted = e }
		c.Handlers.GuildEmojisUpdate = func(e *GuildEmojisUpdate) { emojis = e }
	})
	markConnected(g)

	for _, f := range [][]byte{
		frame(opcodes.Dispatch, "READY", 1, `{"session_id":"s","user":{"id":"10","username":"bot"}}`),
		frame(opcodes.Dispatch, "MESSAGE_CREATE", 2, `{"id":"100","channel_id":"5","content":"hi"}`),
		frame(opcodes.Dispatch, "MESSAGE_REACTION_ADD", 3, `{"user_id":"10","channel_id":"5","message_id":"100","emoji":{"id":"77","name":"blob"}}`),
		frame(opcodes.Dispatch, "GUILD_EMOJIS_UPDATE", 4, `{"guild_id":"1","emojis":[{"id":"77","name":"blob"},{"id":"78","name":"cat"}]}`),
	} {
		_, err := handle(t, g, f)
		require.NoError(t, err)
	}

	require.NotNil(t, reaction)
	require.NotNil(t, reaction.Message)
	require.Len(t, reaction.Message.Reactions, 1)
	assert.True(t, reaction.Message.Reactions[0].Me, "reaction by the current user")

	require.NotNil(t, emojis)
	require.Len(t, emojis.Emojis, 2)
	assert.Same(t, reaction.Emoji, emojis.Emojis[0], "emoji instances are shared through the cache")

	_, err := handle(t, g, frame(opcodes.Dispatch, "MESSAGE_DELETE", 5, `{"id":"100","channel_id":"5"}`))
	require.NoError(t, err)
	require.NotNil(t, deleted)
	require.NotNil(t, deleted.Cached)
	assert.Equal(t, "hi", deleted.Cached.Content)
	assert.Nil(t, g.Cache().Message(100))
}

func TestHeartbeat_NullSequenceThenZombie(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)
	g.sess.heartbeatInterval = 41250 * time.Millisecond

	require.True(t, g.heartbeatTick(g.logger))
	frames := drain(t, g)
	require.Len(t, frames, 1)
	assert.Equal(t, opcodes.Heartbeat, frames[0].Op)
	assert.Equal(t, "null", string(frames[0].D), "sequence 0 is sent as null")
	assert.True(t, g.sess.awaitingAck)

	// No ACK arrived: the next tick must not beat again.
	g.sess.sessionID = "s"
	assert.False(t, g.heartbeatTick(g.logger))
	assert.Empty(t, drain(t, g))
	assert.True(t, g.Resumable())
}

func TestHeartbeat_AckAllowsNextBeat(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)
	g.sess.heartbeatInterval = 41250 * time.Millisecond
	g.sess.sequence = 12

	require.True(t, g.heartbeatTick(g.logger))
	g.sess.lastHeartbeat = time.Now().Add(-50 * time.Millisecond)
	_, err := handle(t, g, frame(opcodes.HeartbeatACK, "", 0, `null`))
	require.NoError(t, err)
	assert.False(t, g.sess.awaitingAck)

	latency, err := g.Latency()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency, 50*time.Millisecond)

	require.True(t, g.heartbeatTick(g.logger))
	frames := drain(t, g)
	require.Len(t, frames, 2)
	assert.Equal(t, "12", string(frames[1].D))
}

func TestHeartbeat_ServerRequested(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)
	g.sess.heartbeatInterval = 41250 * time.Millisecond
	g.sess.awaitingAck = true
	g.armHeartbeat(time.Hour)
	pending := g.heartbeat

	_, err := handle(t, g, frame(opcodes.Heartbeat, "", 0, `null`))
	require.NoError(t, err)

	frames := drain(t, g)
	require.Len(t, frames, 1)
	assert.Equal(t, opcodes.Heartbeat, frames[0].Op)
	assert.NotSame(t, pending, g.heartbeat, "pending tick was replaced")
	assert.True(t, g.sess.awaitingAck)
}

func TestReconnectAndInvalidSession(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantResume bool
	}{
		{"reconnect", frame(opcodes.Reconnect, "", 0, `null`), true},
		{"invalid session resumable", frame(opcodes.InvalidSession, "", 0, `true`), true},
		{"invalid session not resumable", frame(opcodes.InvalidSession, "", 0, `false`), false},
		{"invalid session without payload", frame(opcodes.InvalidSession, "", 0, `null`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t)
			markConnected(g)
			g.sess.sessionID = "s"

			reconnect, err := handle(t, g, tt.data)
			require.NoError(t, err)
			assert.True(t, reconnect)
			assert.Equal(t, tt.wantResume, g.Resumable())
		})
	}
}

func TestSend_NotConnected(t *testing.T) {
	g := newTestGateway(t)

	ok, err := g.Send(opcodes.PresenceUpdate, map[string]string{"status": "online"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, g.queue.len())
}

func TestSend_WindowDropsExcessButNotHeartbeats(t *testing.T) {
	g := newTestGateway(t, func(c *Config) {
		c.SendLimit = 3
		c.SendWindow = time.Minute
	})
	markConnected(g)

	for i := 0; i < 3; i++ {
		ok, err := g.Send(opcodes.PresenceUpdate, i)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := g.Send(opcodes.PresenceUpdate, 3)
	require.NoError(t, err, "a dropped send is not an error")
	assert.False(t, ok)

	g.sendHeartbeat()

	frames := drain(t, g)
	require.Len(t, frames, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, opcodes.PresenceUpdate, frames[i].Op)
	}
	assert.Equal(t, opcodes.Heartbeat, frames[3].Op)
}

func TestSend_MarshalError(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)

	_, err := g.Send(opcodes.PresenceUpdate, func() {})
	assert.Error(t, err)
}

func TestUpdatePresence(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)

	_, err := g.UpdatePresence(entity.Presence{Status: "offline"})
	assert.Error(t, err)

	ok, err := g.UpdatePresence(entity.Presence{Status: entity.StatusDND, Activities: []entity.Activity{{Name: "tests", Type: entity.ActivityWatching}}})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, g.sendIdentify())

	frames := drain(t, g)
	require.Len(t, frames, 2)
	assert.Equal(t, opcodes.PresenceUpdate, frames[0].Op)

	var id identifyData
	require.NoError(t, json.Unmarshal(frames[1].D, &id))
	require.NotNil(t, id.Presence)
	assert.Equal(t, entity.StatusDND, id.Presence.Status)
}

func TestRequestGuildMembersAndVoiceState(t *testing.T) {
	g := newTestGateway(t)
	markConnected(g)

	_, err := g.RequestGuildMembers(RequestGuildMembers{})
	assert.Error(t, err)

	ok, err := g.RequestGuildMembers(RequestGuildMembers{GuildID: 1, Limit: 0})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = g.UpdateVoiceState(VoiceStateUpdate{})
	assert.Error(t, err)

	ok, err = g.UpdateVoiceState(VoiceStateUpdate{GuildID: 1, SelfDeaf: true})
	require.NoError(t, err)
	assert.True(t, ok)

	frames := drain(t, g)
	require.Len(t, frames, 2)
	assert.Equal(t, opcodes.RequestGuildMembers, frames[0].Op)
	assert.JSONEq(t, `{"guild_id":"1","query":"","limit":0}`, string(frames[0].D))
	assert.Equal(t, opcodes.VoiceStateUpdate, frames[1].Op)
	assert.JSONEq(t, `{"guild_id":"1","channel_id":null,"self_mute":false,"self_deaf":true}`, string(frames[1].D))
}

type recordingConn struct {
	mu        sync.Mutex
	written   [][]byte
	closeCode int
	failAfter int
}

func (c *recordingConn) ReadMessage() ([]byte, error) { select {} }

func (c *recordingConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter > 0 && len(c.written) >= c.failAfter {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, data)
	return nil
}

func (c *recordingConn) Close(code int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCode = code
	return nil
}

func (c *recordingConn) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

func TestWritePump_FIFO(t *testing.T) {
	q := newSendQueue()
	conn := &recordingConn{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go writePump(ctx, conn, q, q.currentEpoch(), errCh)

	for _, s := range []string{"a", "b", "c", "d"} {
		q.push([]byte(s))
	}

	assert.Eventually(t, func() bool { return len(conn.writes()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c", "d"}, conn.writes())
}

func TestWritePump_ReportsWriteError(t *testing.T) {
	q := newSendQueue()
	conn := &recordingConn{failAfter: 1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go writePump(ctx, conn, q, q.currentEpoch(), errCh)

	q.push([]byte("ok"))
	q.push([]byte("fails"))

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "broken pipe")
	case <-time.After(time.Second):
		t.Fatal("write error not reported")
	}
}

func TestWritePump_StaleEpochLeavesFramesForNextConnection(t *testing.T) {
	q := newSendQueue()
	old := &recordingConn{}
	epoch := q.currentEpoch()

	// The previous connection was torn down but its pump has not run yet.
	q.clear()
	q.push([]byte("identify"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		writePump(ctx, old, q, epoch, make(chan error, 1))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stale pump kept running")
	}
	assert.Empty(t, old.writes())
	assert.Equal(t, 1, q.len())

	next := &recordingConn{}
	go writePump(ctx, next, q, q.currentEpoch(), make(chan error, 1))
	assert.Eventually(t, func() bool { return len(next.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"identify"}, next.writes())
}

func TestTeardown(t *testing.T) {
	tests := []struct {
		name     string
		resume   bool
		wantCode int
	}{
		{"resumable", true, opcodes.CloseResumable},
		{"final", false, opcodes.CloseNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := store.NewMemory()
			g := newTestGateway(t, func(c *Config) {
				c.Store = mem
				c.SessionKey = "k"
			})
			markConnected(g)
			g.sess.sessionID = "s"
			g.sess.sequence = 9
			g.armHeartbeat(time.Hour)

			ok, err := g.Send(opcodes.PresenceUpdate, 1)
			require.NoError(t, err)
			require.True(t, ok)

			conn := &recordingConn{}
			g.teardown(conn, func() {}, tt.resume, g.logger)

			assert.Equal(t, tt.wantCode, conn.closeCode)
			assert.Nil(t, g.heartbeat)
			assert.Equal(t, 0, g.queue.len(), "queued frames are discarded")
			assert.Empty(t, conn.writes())
			assert.Equal(t, StateDisconnected, g.State())

			snap, err := mem.Load(context.Background(), "k")
			if tt.resume {
				require.NoError(t, err)
				assert.Equal(t, "s", snap.SessionID)
				assert.Equal(t, int64(9), snap.Sequence)
				assert.Equal(t, "s", g.SessionID())
			} else {
				assert.ErrorIs(t, err, store.ErrNotFound)
				assert.Empty(t, g.SessionID())
				assert.Zero(t, g.Sequence())
			}

			ok, err = g.Send(opcodes.PresenceUpdate, 1)
			require.NoError(t, err)
			assert.False(t, ok, "not connected after teardown")
		})
	}
}

type stubDiscovery struct {
	bot *entity.GatewayBot
	err error
}

func (s stubDiscovery) GetBotGateway(context.Context) (*entity.GatewayBot, error) {
	return s.bot, s.err
}

func TestEndpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("configured url", func(t *testing.T) {
		g := newTestGateway(t)
		u, err := g.endpoint(ctx, g.logger)
		require.NoError(t, err)
		assert.Equal(t, "ws://gateway.test/?v=9&encoding=json", u)
	})

	t.Run("resume url", func(t *testing.T) {
		g := newTestGateway(t)
		g.sess.sessionID = "s"
		g.sess.resume = true
		g.sess.resumeURL = "wss://resume.test"
		u, err := g.endpoint(ctx, g.logger)
		require.NoError(t, err)
		assert.Equal(t, "wss://resume.test/?v=9&encoding=json", u)
	})

	t.Run("discovered", func(t *testing.T) {
		g := newTestGateway(t, func(c *Config) {
			c.URL = ""
			c.Discovery = stubDiscovery{bot: &entity.GatewayBot{
				URL:               "wss://found.test",
				SessionStartLimit: entity.SessionStartLimit{Total: 1000, Remaining: 5},
			}}
		})
		u, err := g.endpoint(ctx, g.logger)
		require.NoError(t, err)
		assert.Equal(t, "wss://found.test/?v=9&encoding=json", u)
	})

	t.Run("session starts exhausted", func(t *testing.T) {
		g := newTestGateway(t, func(c *Config) {
			c.Discovery = stubDiscovery{bot: &entity.GatewayBot{
				URL:               "wss://found.test",
				SessionStartLimit: entity.SessionStartLimit{Total: 1000, Remaining: 0, ResetAfter: 60000},
			}}
		})
		_, err := g.endpoint(ctx, g.logger)
		var limitErr *SessionLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, time.Minute, limitErr.ResetAfter)
	})

	t.Run("discovery failure falls back", func(t *testing.T) {
		g := newTestGateway(t, func(c *Config) {
			c.Discovery = stubDiscovery{err: errors.New("boom")}
		})
		u, err := g.endpoint(ctx, g.logger)
		require.NoError(t, err)
		assert.Equal(t, "ws://gateway.test/?v=9&encoding=json", u)
	})

	t.Run("discovery failure without fallback", func(t *testing.T) {
		g := newTestGateway(t, func(c *Config) {
			c.URL = ""
			c.Discovery = stubDiscovery{err: errors.New("boom")}
		})
		_, err := g.endpoint(ctx, g.logger)
		var de *dialError
		assert.ErrorAs(t, err, &de)
	})
}

func TestCloseError(t *testing.T) {
	assert.True(t, (&CloseError{Code: 4004}).Fatal())
	assert.False(t, (&CloseError{Code: 4000}).Fatal())
	assert.False(t, (&CloseError{Code: 4009}).Resumable())
	assert.True(t, (&CloseError{Code: 1001}).Resumable())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_hello", StateAwaitingHello.String())
	assert.Equal(t, "unknown", State(99).String())
}
