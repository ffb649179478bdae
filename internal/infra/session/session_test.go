package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/retry"
)

var (
	_ retry.SessionStore = (*MemoryStore)(nil)
	_ retry.SessionStore = (*RedisStore)(nil)
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func stores(t *testing.T) map[string]retry.SessionStore {
	rs, _ := newRedisStore(t, time.Hour)
	return map[string]retry.SessionStore{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestStoreMerge(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			steps := []struct {
				token  string
				expect string
			}{
				{"0#10", "0#10"},
				{"0#12", "0#12"},
				{"0#11", "0#12"},
				{"1#12", "1#12"},
				{"garbage", "1#12"},
			}
			for _, step := range steps {
				if err := s.Set(ctx, "rid_0", "pk", step.token); err != nil {
					t.Fatalf("Set(%q) error = %v", step.token, err)
				}
				got, err := s.Get(ctx, "rid_0", "pk")
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if got != step.expect {
					t.Errorf("after Set(%q) Get() = %q, want %q", step.token, got, step.expect)
				}
			}
		})
	}
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			mustSet(t, s, "rid_0", "", "0#1")
			mustSet(t, s, "rid_0", "a", "0#2")
			mustSet(t, s, "rid_0", "b", "0#3")
			mustSet(t, s, "rid_1", "a", "0#4")

			if err := s.Clear(ctx, "rid_0", "a"); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			expectToken(t, s, "rid_0", "a", "")
			expectToken(t, s, "rid_0", "b", "0#3")

			if err := s.Clear(ctx, "rid_0", ""); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			expectToken(t, s, "rid_0", "", "")
			expectToken(t, s, "rid_0", "b", "")
			expectToken(t, s, "rid_1", "a", "0#4")

			if err := s.Clear(ctx, "missing", ""); err != nil {
				t.Errorf("Clear() of unknown identity error = %v", err)
			}
		})
	}
}

func TestStoreIgnoresEmpty(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			mustSet(t, s, "", "pk", "0#1")
			mustSet(t, s, "rid_0", "pk", "")
			expectToken(t, s, "", "pk", "")
			expectToken(t, s, "rid_0", "pk", "")

			if got, err := s.Get(ctx, "unknown", "pk"); err != nil || got != "" {
				t.Errorf("Get() of unknown = %q, %v", got, err)
			}
		})
	}
}

func TestRedisStoreTTL(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	mustSet(t, s, "rid_0", "pk", "0#1")

	if !mr.Exists("session:{rid_0}") {
		t.Fatal("expected session hash")
	}
	if ttl := mr.TTL("session:{rid_0}"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	expectToken(t, s, "rid_0", "pk", "")
}

func TestMemoryStoreLen(t *testing.T) {
	s := NewMemoryStore()
	mustSet(t, s, "rid_0", "a", "0#1")
	mustSet(t, s, "rid_0", "b", "0#1")
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	_ = s.Clear(context.Background(), "rid_0", "a")
	_ = s.Clear(context.Background(), "rid_0", "b")
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		in      string
		version string
		lsn     int64
		ok      bool
	}{
		{"0#10", "0", 10, true},
		{"1:2#-1", "1:2", -1, true},
		{"a#b#42", "a#b", 42, true},
		{"10", "", 0, false},
		{"#10", "", 0, false},
		{"0#", "", 0, false},
		{"0#x", "", 0, false},
	}

	for _, tt := range tests {
		got, err := ParseToken(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseToken(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && (got.Version != tt.version || got.LSN != tt.lsn) {
			t.Errorf("ParseToken(%q) = %+v", tt.in, got)
		}
		if tt.ok && got.String() != tt.in {
			t.Errorf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func mustSet(t *testing.T, s retry.SessionStore, id domain.ContainerIdentity, pk, token string) {
	t.Helper()
	if err := s.Set(context.Background(), id, pk, token); err != nil {
		t.Fatalf("Set(%s, %s) error = %v", id, pk, err)
	}
}

func expectToken(t *testing.T, s retry.SessionStore, id domain.ContainerIdentity, pk, want string) {
	t.Helper()
	got, err := s.Get(context.Background(), id, pk)
	if err != nil {
		t.Fatalf("Get(%s, %s) error = %v", id, pk, err)
	}
	if got != want {
		t.Errorf("Get(%s, %s) = %q, want %q", id, pk, got, want)
	}
}
