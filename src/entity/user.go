package entity

import (
	"encoding/json"
	"errors"

	"personal/discord_client/src/snowflake"
)

type User struct {
	ID            snowflake.Snowflake `json:"id"`
	Username      string              `json:"username"`
	Discriminator string              `json:"discriminator"`
	GlobalName    *string             `json:"global_name,omitempty"`
	Avatar        *string             `json:"avatar"`
	Bot           bool                `json:"bot,omitempty"`
	System        bool                `json:"system,omitempty"`
	MFAEnabled    *bool               `json:"mfa_enabled,omitempty"`
	Banner        *string             `json:"banner,omitempty"`
	AccentColor   *int                `json:"accent_color,omitempty"`
	Locale        *string             `json:"locale,omitempty"`
	Verified      *bool               `json:"verified,omitempty"`
	Email         *string             `json:"email,omitempty"`
	Flags         int                 `json:"flags,omitempty"`
	PremiumType   int                 `json:"premium_type,omitempty"`
	PublicFlags   int                 `json:"public_flags,omitempty"`
}

// DecodeUser decodes a user object. The id is required.
func DecodeUser(raw json.RawMessage) (*User, error) {
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, decodeErr("user", err)
	}
	if u.ID.IsZero() {
		return nil, decodeErr("user", errors.New("missing id"))
	}
	return &u, nil
}

// Mention returns the markup that pings the user in message content.
func (u *User) Mention() string {
	return "<@" + u.ID.String() + ">"
}

// DisplayName prefers the global display name over the username.
func (u *User) DisplayName() string {
	if u.GlobalName != nil && *u.GlobalName != "" {
		return *u.GlobalName
	}
	return u.Username
}
