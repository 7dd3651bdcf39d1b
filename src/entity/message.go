package entity

import (
	"encoding/json"
	"errors"
	"time"

	"personal/discord_client/src/snowflake"
)

type Reaction struct {
	Count int
	Me    bool
	Emoji *Emoji
}

// Message is a chat message. Raw holds the JSON the value was decoded from so later
// partial updates can be merged over it.
type Message struct {
	ID              snowflake.Snowflake
	ChannelID       snowflake.Snowflake
	GuildID         snowflake.Snowflake
	Author          *User
	Content         string
	Timestamp       time.Time
	EditedTimestamp *time.Time
	TTS             bool
	MentionEveryone bool
	Mentions        []*User
	MentionRoles    []snowflake.Snowflake
	Reactions       []Reaction
	Pinned          bool
	WebhookID       snowflake.Snowflake
	Type            int
	Flags           int
	Nonce           json.RawMessage

	Raw json.RawMessage
}

type messageWire struct {
	ID              snowflake.Snowflake   `json:"id"`
	ChannelID       snowflake.Snowflake   `json:"channel_id"`
	GuildID         snowflake.Snowflake   `json:"guild_id"`
	Author          json.RawMessage       `json:"author"`
	Content         string                `json:"content"`
	Timestamp       *time.Time            `json:"timestamp"`
	EditedTimestamp *time.Time            `json:"edited_timestamp"`
	TTS             bool                  `json:"tts"`
	MentionEveryone bool                  `json:"mention_everyone"`
	Mentions        []json.RawMessage     `json:"mentions"`
	MentionRoles    []snowflake.Snowflake `json:"mention_roles"`
	Reactions       []reactionWire        `json:"reactions"`
	Pinned          bool                  `json:"pinned"`
	WebhookID       snowflake.Snowflake   `json:"webhook_id"`
	Type            int                   `json:"type"`
	Flags           int                   `json:"flags"`
	Nonce           json.RawMessage       `json:"nonce"`
}

type reactionWire struct {
	Count int             `json:"count"`
	Me    bool            `json:"me"`
	Emoji json.RawMessage `json:"emoji"`
}

// DecodeMessage decodes a message object. Author, mentions and reaction emoji go
// through r so they share cached instances.
func DecodeMessage(raw json.RawMessage, r Resolver) (*Message, error) {
	var w messageWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, decodeErr("message", err)
	}
	if w.ID.IsZero() {
		return nil, decodeErr("message", errors.New("missing id"))
	}
	if w.ChannelID.IsZero() {
		return nil, decodeErr("message", errors.New("missing channel_id"))
	}

	m := &Message{
		ID:              w.ID,
		ChannelID:       w.ChannelID,
		GuildID:         w.GuildID,
		Content:         w.Content,
		EditedTimestamp: w.EditedTimestamp,
		TTS:             w.TTS,
		MentionEveryone: w.MentionEveryone,
		MentionRoles:    w.MentionRoles,
		Pinned:          w.Pinned,
		WebhookID:       w.WebhookID,
		Type:            w.Type,
		Flags:           w.Flags,
		Nonce:           w.Nonce,
		Raw:             cloneRaw(raw),
	}
	if w.Timestamp != nil {
		m.Timestamp = *w.Timestamp
	}

	author, err := resolveUser(r, w.Author)
	if err != nil {
		return nil, decodeErr("message", err)
	}
	m.Author = author

	for _, mention := range w.Mentions {
		u, err := resolveUser(r, mention)
		if err != nil {
			return nil, decodeErr("message", err)
		}
		if u != nil {
			m.Mentions = append(m.Mentions, u)
		}
	}

	for _, rw := range w.Reactions {
		emoji, err := resolveEmoji(r, rw.Emoji)
		if err != nil {
			return nil, decodeErr("message", err)
		}
		m.Reactions = append(m.Reactions, Reaction{Count: rw.Count, Me: rw.Me, Emoji: emoji})
	}

	return m, nil
}

// MergeMessage overlays the top-level fields of patch on base and decodes the result.
// Fields absent from patch keep their base values.
func MergeMessage(base, patch json.RawMessage, r Resolver) (*Message, error) {
	merged, err := mergeObjects(base, patch)
	if err != nil {
		return nil, decodeErr("message", err)
	}
	return DecodeMessage(merged, r)
}

func mergeObjects(base, patch json.RawMessage) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(base) > 0 {
		if err := json.Unmarshal(base, &fields); err != nil {
			return nil, err
		}
	}

	var update map[string]json.RawMessage
	if err := json.Unmarshal(patch, &update); err != nil {
		return nil, err
	}
	for k, v := range update {
		fields[k] = v
	}

	return json.Marshal(fields)
}

// AddReaction records a reaction on the message, bumping the count when the emoji is
// already present. Raw is rewritten too so a later merge keeps the reaction.
func (m *Message) AddReaction(emoji *Emoji, me bool) {
	defer m.syncReactions()

	for i := range m.Reactions {
		if sameEmoji(m.Reactions[i].Emoji, emoji) {
			m.Reactions[i].Count++
			m.Reactions[i].Me = m.Reactions[i].Me || me
			return
		}
	}
	m.Reactions = append(m.Reactions, Reaction{Count: 1, Me: me, Emoji: emoji})
}

func (m *Message) syncReactions() {
	if len(m.Raw) == 0 {
		return
	}

	wire := make([]reactionWire, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		emoji, err := json.Marshal(r.Emoji)
		if err != nil {
			return
		}
		wire = append(wire, reactionWire{Count: r.Count, Me: r.Me, Emoji: emoji})
	}
	patch, err := json.Marshal(map[string]any{"reactions": wire})
	if err != nil {
		return
	}
	if merged, err := mergeObjects(m.Raw, patch); err == nil {
		m.Raw = merged
	}
}

func sameEmoji(a, b *Emoji) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Custom() || b.Custom() {
		return a.ID == b.ID
	}
	return a.Name == b.Name
}
