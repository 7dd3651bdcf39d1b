// Package client is the top-level bot client. It wires the REST client, the entity
// cache, the session store and the gateway together and adds a few helpers on top.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"personal/discord_client/src/cache"
	"personal/discord_client/src/config"
	"personal/discord_client/src/entity"
	"personal/discord_client/src/gateway"
	"personal/discord_client/src/observability"
	"personal/discord_client/src/rest"
	"personal/discord_client/src/snowflake"
	"personal/discord_client/src/store"
)

// ErrEmptyMessage is returned when a message has nothing to send.
var ErrEmptyMessage = errors.New("message has no content")

// Options are the parts of a Client that cannot come from configuration.
type Options struct {
	Handlers gateway.Handlers

	// Dialer and HTTPClient replace the network transports.
	Dialer     gateway.Dialer
	HTTPClient *http.Client

	// Store replaces the configured session store. The Client closes it.
	Store store.Store
}

type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	cache   *cache.Cache
	rest    *rest.Client
	gateway *gateway.Gateway
	store   store.Store

	cacheMetrics metric.Registration

	mu       sync.Mutex
	presence entity.Presence
}

// New builds a client from cfg. Nothing connects until Run.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := cache.New(cache.Config{
		MaxMessages:  cfg.Cache.MaxMessages,
		RefreshUsers: cfg.Cache.RefreshUsers,
	}, logger)

	restClient, err := rest.New(rest.Config{
		Token:                   cfg.Token,
		BaseURL:                 cfg.REST.BaseURL,
		UserAgent:               cfg.REST.UserAgent,
		Timeout:                 cfg.REST.Timeout,
		GlobalRequestsPerSecond: cfg.REST.GlobalRequestsPerSecond,
		GlobalBurst:             cfg.REST.GlobalBurst,
		Resolver:                c,
		HTTPClient:              opts.HTTPClient,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	st := opts.Store
	if st == nil {
		st, err = store.New(ctx, store.Config{Type: cfg.Storage.Type, DSN: cfg.Storage.DSN})
		if err != nil {
			return nil, fmt.Errorf("client: could not open session store: %w", err)
		}
	}

	instrumented, err := observability.NewInstrumentedStore(st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("client: %w", err)
	}

	if privileged := gateway.PrivilegedIntents(cfg.Intents); privileged != 0 {
		logger.Info("Privileged intents requested, they must be enabled for the application", "intents", privileged)
	}

	presence := presenceFromConfig(cfg.Gateway)
	gw, err := gateway.New(gateway.Config{
		Token:                 cfg.Token,
		URL:                   cfg.Gateway.URL,
		Discovery:             restClient,
		Intents:               cfg.Intents,
		Compress:              cfg.Gateway.Compress,
		LargeThreshold:        cfg.Gateway.LargeThreshold,
		Presence:              presence,
		SendLimit:             cfg.Gateway.SendLimit,
		SendWindow:            cfg.Gateway.SendWindow,
		ReconnectInitialDelay: cfg.Gateway.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.Gateway.ReconnectMaxDelay,
		MaxReconnectAttempts:  cfg.Gateway.MaxReconnectAttempts,
		Cache:                 c,
		Store:                 instrumented,
		SessionKey:            cfg.Storage.SessionKey,
		Dialer:                opts.Dialer,
		Handlers:              opts.Handlers,
	}, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("client: %w", err)
	}

	reg, err := observability.RegisterCacheMetrics(c)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("client: %w", err)
	}

	return &Client{
		cfg:          cfg,
		logger:       logger.With("component", "client"),
		cache:        c,
		rest:         restClient,
		gateway:      gw,
		store:        instrumented,
		cacheMetrics: reg,
		presence:     *presence,
	}, nil
}

// NewBot builds a client with default settings for token.
func NewBot(ctx context.Context, token string, handlers gateway.Handlers, logger *slog.Logger) (*Client, error) {
	cfg := config.NewDefaultConfig()
	cfg.Token = token
	return New(ctx, cfg, Options{Handlers: handlers}, logger)
}

func presenceFromConfig(cfg config.GatewayConfig) *entity.Presence {
	p := &entity.Presence{Status: entity.Status(cfg.Status)}
	if p.Status == "" {
		p.Status = entity.StatusOnline
	}
	if cfg.Activity != "" {
		p.Activities = []entity.Activity{{Name: cfg.Activity, Type: entity.ActivityPlaying}}
	}
	return p
}

func (c *Client) Cache() *cache.Cache       { return c.cache }
func (c *Client) REST() *rest.Client        { return c.rest }
func (c *Client) Gateway() *gateway.Gateway { return c.gateway }

// Run connects to the gateway and blocks until ctx is cancelled, Disconnect is
// called or the session fails fatally.
func (c *Client) Run(ctx context.Context) error {
	return c.gateway.Run(ctx)
}

// Disconnect ends the gateway session. Run returns once the connection is closed.
func (c *Client) Disconnect() {
	c.gateway.Disconnect()
}

// Close releases the session store and metric callbacks. Call it after Run returns.
func (c *Client) Close() error {
	var errs []error
	if c.cacheMetrics != nil {
		if err := c.cacheMetrics.Unregister(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CurrentUser is the bot user once the session is ready, otherwise nil.
func (c *Client) CurrentUser() *entity.User {
	id := c.gateway.SelfID()
	if id.IsZero() {
		return nil
	}
	return c.cache.User(id)
}

// GetUser returns the user with id. Cached users are returned without a request
// unless fetch is set; a miss or a fetch goes to the API and the result is cached.
func (c *Client) GetUser(ctx context.Context, id snowflake.Snowflake, fetch bool) (*entity.User, error) {
	if !fetch {
		if u := c.cache.User(id); u != nil {
			return u, nil
		}
	}

	u, err := c.rest.GetUser(ctx, id)
	if err != nil {
		if !rest.IsRateLimited(err) {
			c.logger.Error("Failed to fetch user", "user_id", id, "error", err)
		}
		return nil, err
	}
	return c.cache.StoreUser(u), nil
}

func (c *Client) GetChannel(ctx context.Context, id snowflake.Snowflake) (*entity.Channel, error) {
	return c.rest.GetChannel(ctx, id)
}

// SendMessage posts a message. A refused request is reported as an error for
// which rest.IsRateLimited is true.
func (c *Client) SendMessage(ctx context.Context, channelID snowflake.Snowflake, params rest.MessageParams) (*entity.Message, error) {
	if strings.TrimSpace(params.Content) == "" {
		return nil, ErrEmptyMessage
	}

	m, err := c.rest.CreateMessage(ctx, channelID, params)
	if err != nil {
		if rest.IsRateLimited(err) {
			c.logger.Warn("Message not sent, rate limited", "channel_id", channelID, "error", err)
		}
		return nil, err
	}
	return m, nil
}

// Reply answers m in its channel, referencing it.
func (c *Client) Reply(ctx context.Context, m *entity.Message, content string) (*entity.Message, error) {
	return c.SendMessage(ctx, m.ChannelID, rest.MessageParams{
		Content: content,
		MessageReference: &rest.MessageReference{
			MessageID: m.ID,
			ChannelID: m.ChannelID,
			GuildID:   m.GuildID,
		},
		AllowedMentions: &rest.AllowedMentions{Parse: []string{}},
	})
}

// SetPresence replaces the whole presence. It reports false when the frame was not
// sent because the gateway is disconnected or over its send window; the presence is
// still used for the next IDENTIFY.
func (c *Client) SetPresence(p entity.Presence) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPresenceLocked(p)
}

func (c *Client) setPresenceLocked(p entity.Presence) (bool, error) {
	sent, err := c.gateway.UpdatePresence(p)
	if err != nil {
		return false, err
	}
	c.presence = p
	return sent, nil
}

// SetStatus changes the status and keeps the current activities.
func (c *Client) SetStatus(status entity.Status) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.presence
	p.Status = status
	p.Since = nil
	if status == entity.StatusIdle {
		since := time.Now().UnixMilli()
		p.Since = &since
	}
	return c.setPresenceLocked(p)
}

// SetActivity replaces the activities with a single one and keeps the status.
func (c *Client) SetActivity(activity entity.Activity) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.presence
	p.Activities = []entity.Activity{activity}
	return c.setPresenceLocked(p)
}

// Presence is the presence last set, or the configured one.
func (c *Client) Presence() entity.Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}

// Latency is the last heartbeat round trip.
func (c *Client) Latency() (time.Duration, error) {
	return c.gateway.Latency()
}

// Healthy reports an error unless the gateway session is connected.
func (c *Client) Healthy() error {
	if s := c.gateway.State(); s != gateway.StateConnected {
		return fmt.Errorf("gateway is %s", s)
	}
	return nil
}
