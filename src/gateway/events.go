package gateway

import (
	"encoding/json"

	"personal/discord_client/src/cache"
	"personal/discord_client/src/entity"
	"personal/discord_client/src/snowflake"
)

// Event is a decoded DISPATCH payload. The set of implementations is closed; events
// the client does not model arrive as *Unknown.
type Event interface {
	EventName() string
	isEvent()
}

type UnavailableGuild struct {
	ID          snowflake.Snowflake `json:"id"`
	Unavailable bool                `json:"unavailable"`
}

type Ready struct {
	Version          int
	User             *entity.User
	SessionID        string
	ResumeGatewayURL string
	Guilds           []UnavailableGuild
	ApplicationID    snowflake.Snowflake
}

type Resumed struct{}

type MessageCreate struct {
	Message *entity.Message
}

type MessageUpdate struct {
	Message *entity.Message
}

// MessageDelete carries the removed cached message when it was cached.
type MessageDelete struct {
	ID        snowflake.Snowflake
	ChannelID snowflake.Snowflake
	GuildID   snowflake.Snowflake
	Cached    *entity.Message
}

// MessageReactionAdd carries the cached message with the reaction applied, if cached.
type MessageReactionAdd struct {
	UserID    snowflake.Snowflake
	ChannelID snowflake.Snowflake
	MessageID snowflake.Snowflake
	GuildID   snowflake.Snowflake
	Emoji     *entity.Emoji
	Message   *entity.Message
}

type GuildEmojisUpdate struct {
	GuildID snowflake.Snowflake
	Emojis  []*entity.Emoji
}

type Unknown struct {
	Name string
	Data json.RawMessage
}

func (*Ready) EventName() string              { return "READY" }
func (*Resumed) EventName() string            { return "RESUMED" }
func (*MessageCreate) EventName() string      { return "MESSAGE_CREATE" }
func (*MessageUpdate) EventName() string      { return "MESSAGE_UPDATE" }
func (*MessageDelete) EventName() string      { return "MESSAGE_DELETE" }
func (*MessageReactionAdd) EventName() string { return "MESSAGE_REACTION_ADD" }
func (*GuildEmojisUpdate) EventName() string  { return "GUILD_EMOJIS_UPDATE" }
func (e *Unknown) EventName() string          { return e.Name }

func (*Ready) isEvent()              {}
func (*Resumed) isEvent()            {}
func (*MessageCreate) isEvent()      {}
func (*MessageUpdate) isEvent()      {}
func (*MessageDelete) isEvent()      {}
func (*MessageReactionAdd) isEvent() {}
func (*GuildEmojisUpdate) isEvent()  {}
func (*Unknown) isEvent()            {}

// Handlers holds one optional callback per event kind. Callbacks run on the
// gateway's event loop in the order events were received; a slow callback delays
// every later frame. Any, when set, runs after the typed callback.
type Handlers struct {
	Ready              func(*Ready)
	Resumed            func(*Resumed)
	MessageCreate      func(*MessageCreate)
	MessageUpdate      func(*MessageUpdate)
	MessageDelete      func(*MessageDelete)
	MessageReactionAdd func(*MessageReactionAdd)
	GuildEmojisUpdate  func(*GuildEmojisUpdate)
	Unknown            func(*Unknown)
	Any                func(Event)
}

func (h *Handlers) dispatch(ev Event) {
	switch e := ev.(type) {
	case *Ready:
		if h.Ready != nil {
			h.Ready(e)
		}
	case *Resumed:
		if h.Resumed != nil {
			h.Resumed(e)
		}
	case *MessageCreate:
		if h.MessageCreate != nil {
			h.MessageCreate(e)
		}
	case *MessageUpdate:
		if h.MessageUpdate != nil {
			h.MessageUpdate(e)
		}
	case *MessageDelete:
		if h.MessageDelete != nil {
			h.MessageDelete(e)
		}
	case *MessageReactionAdd:
		if h.MessageReactionAdd != nil {
			h.MessageReactionAdd(e)
		}
	case *GuildEmojisUpdate:
		if h.GuildEmojisUpdate != nil {
			h.GuildEmojisUpdate(e)
		}
	case *Unknown:
		if h.Unknown != nil {
			h.Unknown(e)
		}
	}
	if h.Any != nil {
		h.Any(ev)
	}
}

// decodeEvent materializes a dispatch payload, populating c as a side effect.
// selfID is the current user, used to mark own reactions.
func decodeEvent(name string, raw json.RawMessage, c *cache.Cache, selfID snowflake.Snowflake) (Event, error) {
	switch name {
	case "READY":
		return decodeReady(raw, c)

	case "RESUMED":
		return &Resumed{}, nil

	case "MESSAGE_CREATE":
		m, err := c.UpsertMessage(raw, false)
		if err != nil {
			return nil, err
		}
		return &MessageCreate{Message: m}, nil

	case "MESSAGE_UPDATE":
		m, err := c.UpsertMessage(raw, true)
		if err != nil {
			return nil, err
		}
		return &MessageUpdate{Message: m}, nil

	case "MESSAGE_DELETE":
		var d struct {
			ID        snowflake.Snowflake `json:"id"`
			ChannelID snowflake.Snowflake `json:"channel_id"`
			GuildID   snowflake.Snowflake `json:"guild_id"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, &entity.DecodeError{Kind: "message delete", Err: err}
		}
		return &MessageDelete{
			ID:        d.ID,
			ChannelID: d.ChannelID,
			GuildID:   d.GuildID,
			Cached:    c.RemoveMessage(d.ID),
		}, nil

	case "MESSAGE_REACTION_ADD":
		var d struct {
			UserID    snowflake.Snowflake `json:"user_id"`
			ChannelID snowflake.Snowflake `json:"channel_id"`
			MessageID snowflake.Snowflake `json:"message_id"`
			GuildID   snowflake.Snowflake `json:"guild_id"`
			Emoji     json.RawMessage     `json:"emoji"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, &entity.DecodeError{Kind: "reaction", Err: err}
		}
		emoji, err := c.UpsertEmoji(d.Emoji)
		if err != nil {
			return nil, err
		}
		return &MessageReactionAdd{
			UserID:    d.UserID,
			ChannelID: d.ChannelID,
			MessageID: d.MessageID,
			GuildID:   d.GuildID,
			Emoji:     emoji,
			Message:   c.AddReaction(d.MessageID, emoji, !selfID.IsZero() && d.UserID == selfID),
		}, nil

	case "GUILD_EMOJIS_UPDATE":
		var d struct {
			GuildID snowflake.Snowflake `json:"guild_id"`
			Emojis  []json.RawMessage   `json:"emojis"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, &entity.DecodeError{Kind: "guild emojis", Err: err}
		}
		ev := &GuildEmojisUpdate{GuildID: d.GuildID}
		for _, e := range d.Emojis {
			emoji, err := c.UpsertEmoji(e)
			if err != nil {
				return nil, err
			}
			ev.Emojis = append(ev.Emojis, emoji)
		}
		return ev, nil

	default:
		return &Unknown{Name: name, Data: raw}, nil
	}
}

func decodeReady(raw json.RawMessage, c *cache.Cache) (*Ready, error) {
	var d struct {
		V                int                `json:"v"`
		User             json.RawMessage    `json:"user"`
		SessionID        string             `json:"session_id"`
		ResumeGatewayURL string             `json:"resume_gateway_url"`
		Guilds           []UnavailableGuild `json:"guilds"`
		Application      struct {
			ID snowflake.Snowflake `json:"id"`
		} `json:"application"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, &entity.DecodeError{Kind: "ready", Err: err}
	}
	if d.SessionID == "" {
		return nil, &entity.DecodeError{Kind: "ready", Err: errMissing("session_id")}
	}

	user, err := c.UpsertUser(d.User)
	if err != nil {
		return nil, err
	}

	return &Ready{
		Version:          d.V,
		User:             user,
		SessionID:        d.SessionID,
		ResumeGatewayURL: d.ResumeGatewayURL,
		Guilds:           d.Guilds,
		ApplicationID:    d.Application.ID,
	}, nil
}
