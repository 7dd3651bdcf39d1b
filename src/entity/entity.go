// Package entity decodes the API objects the client works with.
//
// Decoding is pure: every function takes the raw JSON of one object and returns a
// typed value. Objects that reference users or emoji resolve those references through
// a Resolver, which lets the cache hand out one shared instance per id.
package entity

import (
	"encoding/json"
	"fmt"
)

// Resolver materializes nested users and emoji. The cache implements it; a nil
// Resolver decodes nested objects standalone.
type Resolver interface {
	UpsertUser(raw json.RawMessage) (*User, error)
	UpsertEmoji(raw json.RawMessage) (*Emoji, error)
}

// DecodeError reports that a payload could not be turned into an entity.
type DecodeError struct {
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(kind string, err error) error {
	return &DecodeError{Kind: kind, Err: err}
}

func resolveUser(r Resolver, raw json.RawMessage) (*User, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if r == nil {
		return DecodeUser(raw)
	}
	return r.UpsertUser(raw)
}

func resolveEmoji(r Resolver, raw json.RawMessage) (*Emoji, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if r == nil {
		return DecodeEmoji(raw, nil)
	}
	return r.UpsertEmoji(raw)
}

// cloneRaw copies raw so a retained value never aliases a reused read buffer.
func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
