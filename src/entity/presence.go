package entity

import (
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
)

// Valid reports whether the status may be sent in a presence update.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDND, StatusInvisible:
		return true
	}
	return false
}

type ActivityType int

const (
	ActivityPlaying   ActivityType = 0
	ActivityStreaming ActivityType = 1
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
	ActivityCustom    ActivityType = 4
	ActivityCompeting ActivityType = 5
)

type Activity struct {
	Name  string       `json:"name"`
	Type  ActivityType `json:"type"`
	URL   string       `json:"url,omitempty"`
	State string       `json:"state,omitempty"`
}

// Presence is the client's own presence as sent in IDENTIFY and op 3 updates.
type Presence struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     Status     `json:"status"`
	AFK        bool       `json:"afk"`
}

// Validate checks the presence before it is sent.
func (p Presence) Validate() error {
	if !p.Status.Valid() {
		return fmt.Errorf("invalid presence status %q", p.Status)
	}
	for i, a := range p.Activities {
		if a.Name == "" {
			return fmt.Errorf("activity %d: name is required", i)
		}
		if a.Type < ActivityPlaying || a.Type > ActivityCompeting {
			return fmt.Errorf("activity %d: unknown type %d", i, a.Type)
		}
		if a.Type == ActivityStreaming && a.URL == "" {
			return fmt.Errorf("activity %d: streaming requires a url", i)
		}
	}
	return nil
}

// MarshalJSON always emits an activities array; the gateway rejects null.
func (p Presence) MarshalJSON() ([]byte, error) {
	type presence Presence
	out := presence(p)
	if out.Activities == nil {
		out.Activities = []Activity{}
	}
	return json.Marshal(out)
}
