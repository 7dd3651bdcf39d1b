package entity

import (
	"encoding/json"
	"errors"

	"personal/discord_client/src/snowflake"
)

type ChannelType int

const (
	ChannelGuildText          ChannelType = 0
	ChannelDM                 ChannelType = 1
	ChannelGuildVoice         ChannelType = 2
	ChannelGroupDM            ChannelType = 3
	ChannelGuildCategory      ChannelType = 4
	ChannelGuildAnnouncement  ChannelType = 5
	ChannelAnnouncementThread ChannelType = 10
	ChannelPublicThread       ChannelType = 11
	ChannelPrivateThread      ChannelType = 12
	ChannelGuildStageVoice    ChannelType = 13
	ChannelGuildForum         ChannelType = 15
)

type Overwrite struct {
	ID    snowflake.Snowflake `json:"id"`
	Type  int                 `json:"type"`
	Allow string              `json:"allow"`
	Deny  string              `json:"deny"`
}

type ThreadMetadata struct {
	Archived            bool   `json:"archived"`
	AutoArchiveDuration int    `json:"auto_archive_duration"`
	ArchiveTimestamp    string `json:"archive_timestamp"`
	Locked              bool   `json:"locked"`
	Invitable           *bool  `json:"invitable,omitempty"`
}

type Tag struct {
	ID        snowflake.Snowflake `json:"id"`
	Name      string              `json:"name"`
	Moderated bool                `json:"moderated"`
	EmojiID   snowflake.Snowflake `json:"emoji_id,omitempty"`
	EmojiName *string             `json:"emoji_name,omitempty"`
}

// Channel is not cached; it is returned by value-oriented REST calls.
type Channel struct {
	ID                   snowflake.Snowflake   `json:"id"`
	Type                 ChannelType           `json:"type"`
	GuildID              snowflake.Snowflake   `json:"guild_id,omitempty"`
	Position             *int                  `json:"position,omitempty"`
	PermissionOverwrites []Overwrite           `json:"permission_overwrites,omitempty"`
	Name                 *string               `json:"name,omitempty"`
	Topic                *string               `json:"topic,omitempty"`
	NSFW                 bool                  `json:"nsfw,omitempty"`
	LastMessageID        snowflake.Snowflake   `json:"last_message_id,omitempty"`
	Bitrate              *int                  `json:"bitrate,omitempty"`
	UserLimit            *int                  `json:"user_limit,omitempty"`
	RateLimitPerUser     *int                  `json:"rate_limit_per_user,omitempty"`
	Recipients           []*User               `json:"-"`
	Icon                 *string               `json:"icon,omitempty"`
	OwnerID              snowflake.Snowflake   `json:"owner_id,omitempty"`
	ParentID             snowflake.Snowflake   `json:"parent_id,omitempty"`
	LastPinTimestamp     *string               `json:"last_pin_timestamp,omitempty"`
	ThreadMetadata       *ThreadMetadata       `json:"thread_metadata,omitempty"`
	Permissions          *string               `json:"permissions,omitempty"`
	Flags                int                   `json:"flags,omitempty"`
	AvailableTags        []Tag                 `json:"available_tags,omitempty"`
	AppliedTags          []snowflake.Snowflake `json:"applied_tags,omitempty"`
}

// DecodeChannel decodes a channel object; DM recipients go through r.
func DecodeChannel(raw json.RawMessage, r Resolver) (*Channel, error) {
	var c Channel
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, decodeErr("channel", err)
	}
	if c.ID.IsZero() {
		return nil, decodeErr("channel", errors.New("missing id"))
	}

	var recipients struct {
		Recipients []json.RawMessage `json:"recipients"`
	}
	if err := json.Unmarshal(raw, &recipients); err != nil {
		return nil, decodeErr("channel", err)
	}
	for _, rr := range recipients.Recipients {
		u, err := resolveUser(r, rr)
		if err != nil {
			return nil, decodeErr("channel", err)
		}
		if u != nil {
			c.Recipients = append(c.Recipients, u)
		}
	}

	return &c, nil
}

// IsThread reports whether the channel is one of the thread types.
func (c *Channel) IsThread() bool {
	switch c.Type {
	case ChannelAnnouncementThread, ChannelPublicThread, ChannelPrivateThread:
		return true
	}
	return false
}
