package user

import (
	"context"
	"testing"

	sec "ChatWire/tools/security"

	"github.com/pkg/errors"
)

type fakeLookup struct {
	online map[string]bool
	err    error
}

func (f fakeLookup) Lookup(_ context.Context, userID string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return "gw-1", f.online[userID], nil
}

func TestLiveOnlineOverlay(t *testing.T) {
	ctx := context.Background()
	h := NewHandler(nil, sec.Options{}, fakeLookup{online: map[string]bool{"u1": true}})

	if !h.liveOnline(ctx, "u1", false) {
		t.Fatal("mirror says online, got offline")
	}
	// a stale durable flag never wins over the mirror
	if h.liveOnline(ctx, "u2", true) {
		t.Fatal("mirror says offline, got online")
	}
}

func TestLiveOnlineFallsBack(t *testing.T) {
	ctx := context.Background()

	// unreachable mirror falls back to the stored flag
	h := NewHandler(nil, sec.Options{}, fakeLookup{err: errors.New("down")})
	if !h.liveOnline(ctx, "u1", true) {
		t.Fatal("fallback dropped the stored flag")
	}
	if h.liveOnline(ctx, "u1", false) {
		t.Fatal("fallback invented an online flag")
	}

	// no mirror configured at all
	h = NewHandler(nil, sec.Options{}, nil)
	if !h.liveOnline(ctx, "u1", true) {
		t.Fatal("nil mirror dropped the stored flag")
	}
}
