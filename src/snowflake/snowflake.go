// Package snowflake implements the 64-bit identifiers Discord assigns to every entity.
//
// A snowflake carries its creation time in the high 42 bits, counted in milliseconds
// since the Discord epoch (2015-01-01T00:00:00Z). The low 22 bits hold worker,
// process and increment fields that this package does not interpret.
package snowflake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Epoch is the Discord epoch in Unix milliseconds.
const Epoch = 1420070400000

const timestampShift = 22

// ErrInvalid is returned when text does not hold a decimal uint64.
var ErrInvalid = errors.New("invalid snowflake")

// Snowflake is an immutable entity identifier.
type Snowflake uint64

// Parse converts decimal text into a Snowflake. Empty, signed, non-numeric and
// out-of-range input is rejected.
func Parse(s string) (Snowflake, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalid)
	}
	if s[0] == '+' || s[0] == '-' {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return Snowflake(v), nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Snowflake {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the decimal form used on the wire.
func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// IsZero reports whether the snowflake is unset.
func (s Snowflake) IsZero() bool {
	return s == 0
}

// CreatedAt returns the creation instant encoded in the identifier.
func (s Snowflake) CreatedAt() time.Time {
	ms := int64(uint64(s)>>timestampShift) + Epoch
	return time.UnixMilli(ms).UTC()
}

// MarshalJSON encodes the snowflake as a quoted decimal string, the way the API does.
func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

// UnmarshalJSON accepts a quoted decimal string, a bare number, or null (leaving zero).
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = 0
		return nil
	}

	var text string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	} else {
		text = string(data)
	}

	id, err := Parse(text)
	if err != nil {
		return err
	}
	*s = id
	return nil
}
