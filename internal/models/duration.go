package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that serializes as "1.5s" instead of nanoseconds.
// Plain integers are still accepted on decode and read as nanoseconds.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(int64(val))
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}
