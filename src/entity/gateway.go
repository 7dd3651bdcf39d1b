package entity

import (
	"encoding/json"
	"errors"
	"time"
)

type Gateway struct {
	URL string `json:"url"`
}

type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"` // milliseconds
	MaxConcurrency int `json:"max_concurrency"`
}

// ResetIn converts ResetAfter to a duration.
func (l SessionStartLimit) ResetIn() time.Duration {
	return time.Duration(l.ResetAfter) * time.Millisecond
}

// GatewayBot is the answer to GET /gateway/bot.
type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

func DecodeGatewayBot(raw json.RawMessage) (*GatewayBot, error) {
	var g GatewayBot
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, decodeErr("gateway bot", err)
	}
	if g.URL == "" {
		return nil, decodeErr("gateway bot", errors.New("missing url"))
	}
	return &g, nil
}
