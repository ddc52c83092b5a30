package decode

import (
	"encoding/json"
	"testing"
)

type samplePayload struct {
	RoomID   string `json:"roomId"`
	Limit    int    `json:"limit"`
	IsTyping bool   `json:"isTyping"`
}

func TestMapMatchesJSONTags(t *testing.T) {
	p, err := Map[samplePayload](map[string]any{
		"roomId":   "r1",
		"limit":    float64(25), // JSON numbers arrive as float64
		"isTyping": true,
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.RoomID != "r1" || p.Limit != 25 || !p.IsTyping {
		t.Fatalf("payload = %+v", p)
	}
}

func TestMapJSONNumber(t *testing.T) {
	p, err := Map[samplePayload](map[string]any{"limit": json.Number("7")})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Limit != 7 {
		t.Fatalf("limit = %d", p.Limit)
	}
}

func TestMapWeakTyping(t *testing.T) {
	p, err := Map[samplePayload](map[string]any{"limit": "12"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Limit != 12 {
		t.Fatalf("limit = %d", p.Limit)
	}
}

func TestMapNil(t *testing.T) {
	if _, err := Map[samplePayload](nil); err == nil {
		t.Fatal("nil map decoded")
	}
}
