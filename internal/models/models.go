package models

import (
	"strconv"
	"time"
)

// Payload is a loosely typed JSON object as delivered by automation webhooks.
type Payload map[string]interface{}

func (p Payload) GetInt64(key string) int64 {
	if p == nil {
		return 0
	}
	val, ok := p[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func (p Payload) GetFloat(key string) float64 {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func (p Payload) GetString(key string) string {
	if p == nil {
		return ""
	}
	val, ok := p[key]
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

// GetTime accepts RFC3339 timestamps and plain YYYY-MM-DD dates.
func (p Payload) GetTime(key string) time.Time {
	if p == nil {
		return time.Time{}
	}
	val, ok := p[key]
	if !ok {
		return time.Time{}
	}
	switch v := val.(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			t, err = time.Parse(DateLayout, v)
			if err != nil {
				return time.Time{}
			}
		}
		return t
	default:
		return time.Time{}
	}
}

func (p Payload) GetObject(key string) Payload {
	if p == nil {
		return nil
	}
	switch v := p[key].(type) {
	case map[string]interface{}:
		return Payload(v)
	case Payload:
		return v
	default:
		return nil
	}
}

type Availability struct {
	Date       time.Time `json:"date"`
	PropertyID int64     `json:"property_id"`
	Available  bool      `json:"available"`
	BookingID  int64     `json:"booking_id,omitempty"`
}
