package entity

import (
	"encoding/json"
	"errors"

	"personal/discord_client/src/snowflake"
)

// Emoji is either a custom guild emoji (non-zero ID) or a unicode emoji (Name only).
type Emoji struct {
	ID            snowflake.Snowflake   `json:"id"`
	Name          string                `json:"name"`
	Roles         []snowflake.Snowflake `json:"roles,omitempty"`
	User          *User                 `json:"-"`
	RequireColons bool                  `json:"require_colons,omitempty"`
	Managed       bool                  `json:"managed,omitempty"`
	Animated      bool                  `json:"animated,omitempty"`
	Available     bool                  `json:"available,omitempty"`
}

type emojiWire struct {
	ID            snowflake.Snowflake   `json:"id"`
	Name          *string               `json:"name"`
	Roles         []snowflake.Snowflake `json:"roles"`
	User          json.RawMessage       `json:"user"`
	RequireColons bool                  `json:"require_colons"`
	Managed       bool                  `json:"managed"`
	Animated      bool                  `json:"animated"`
	Available     bool                  `json:"available"`
}

// DecodeEmoji decodes an emoji object, resolving the creator through r.
func DecodeEmoji(raw json.RawMessage, r Resolver) (*Emoji, error) {
	var w emojiWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, decodeErr("emoji", err)
	}

	e := &Emoji{
		ID:            w.ID,
		Roles:         w.Roles,
		RequireColons: w.RequireColons,
		Managed:       w.Managed,
		Animated:      w.Animated,
		Available:     w.Available,
	}
	if w.Name != nil {
		e.Name = *w.Name
	}
	if e.ID.IsZero() && e.Name == "" {
		return nil, decodeErr("emoji", errors.New("neither id nor name present"))
	}

	user, err := resolveUser(r, w.User)
	if err != nil {
		return nil, decodeErr("emoji", err)
	}
	e.User = user

	return e, nil
}

// Custom reports whether the emoji belongs to a guild rather than being unicode.
func (e *Emoji) Custom() bool {
	return !e.ID.IsZero()
}

// APIName is the form used in reaction endpoints: "name:id" or the unicode text.
func (e *Emoji) APIName() string {
	if e.Custom() {
		return e.Name + ":" + e.ID.String()
	}
	return e.Name
}
