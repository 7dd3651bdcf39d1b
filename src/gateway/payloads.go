package gateway

import (
	"encoding/json"

	"personal/discord_client/src/entity"
	"personal/discord_client/src/opcodes"
	"personal/discord_client/src/snowflake"
)

// Frame is an inbound gateway frame. D is decoded later according to Op and T.
type Frame struct {
	Op opcodes.Opcode  `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  *string         `json:"t"`
}

type outFrame struct {
	Op opcodes.Opcode `json:"op"`
	D  any            `json:"d"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token          string             `json:"token"`
	Properties     identifyProperties `json:"properties"`
	Compress       bool               `json:"compress"`
	LargeThreshold int                `json:"large_threshold"`
	Shard          [2]int             `json:"shard"`
	Presence       *entity.Presence   `json:"presence,omitempty"`
	Intents        int                `json:"intents"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// RequestGuildMembers asks for GUILD_MEMBERS_CHUNK events. Set either Query (with
// Limit) or UserIDs.
type RequestGuildMembers struct {
	GuildID   snowflake.Snowflake   `json:"guild_id"`
	Query     *string               `json:"query,omitempty"`
	Limit     int                   `json:"limit"`
	Presences bool                  `json:"presences,omitempty"`
	UserIDs   []snowflake.Snowflake `json:"user_ids,omitempty"`
	Nonce     string                `json:"nonce,omitempty"`
}

// VoiceStateUpdate joins, moves between or leaves (nil ChannelID) voice channels.
// Only the command is sent; voice transport is not handled here.
type VoiceStateUpdate struct {
	GuildID   snowflake.Snowflake  `json:"guild_id"`
	ChannelID *snowflake.Snowflake `json:"channel_id"`
	SelfMute  bool                 `json:"self_mute"`
	SelfDeaf  bool                 `json:"self_deaf"`
}
