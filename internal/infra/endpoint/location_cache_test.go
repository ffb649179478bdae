package endpoint

import (
	"reflect"
	"testing"
	"time"
)

var testAccount = &Account{
	WritableLocations: []Location{
		{Name: "East US", Endpoint: "https://east"},
		{Name: "West US", Endpoint: "https://west"},
	},
	ReadableLocations: []Location{
		{Name: "East US", Endpoint: "https://east"},
		{Name: "West US", Endpoint: "https://west"},
		{Name: "North Europe", Endpoint: "https://europe"},
	},
}

func TestLocationCacheRanking(t *testing.T) {
	multiWrite := *testAccount
	multiWrite.EnableMultipleWriteLocations = true

	tests := []struct {
		name      string
		preferred []string
		account   *Account
		hint      string
		reads     []string
		writes    []string
	}{
		{
			name:   "no account",
			reads:  []string{"https://default"},
			writes: []string{"https://default"},
		},
		{
			name:    "account order",
			account: testAccount,
			reads:   []string{"https://east", "https://west", "https://europe"},
			writes:  []string{"https://east", "https://west"},
		},
		{
			name:      "preferred reads, single write region",
			preferred: []string{"North Europe", "West US"},
			account:   testAccount,
			reads:     []string{"https://europe", "https://west", "https://east"},
			writes:    []string{"https://east", "https://west"},
		},
		{
			name:      "preferred writes with multi-write",
			preferred: []string{"West US"},
			account:   &multiWrite,
			reads:     []string{"https://west", "https://east", "https://europe"},
			writes:    []string{"https://west", "https://east"},
		},
		{
			name:      "hint wins",
			preferred: []string{"West US"},
			account:   testAccount,
			hint:      "https://europe",
			reads:     []string{"https://europe", "https://west", "https://east"},
			writes:    []string{"https://east", "https://west"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLocationCache("https://default", tt.preferred, time.Minute)
			if tt.account != nil {
				c.Update(tt.account, tt.hint)
			}
			if got := c.ReadEndpoints(); !reflect.DeepEqual(got, tt.reads) {
				t.Errorf("ReadEndpoints() = %v, want %v", got, tt.reads)
			}
			if got := c.WriteEndpoints(); !reflect.DeepEqual(got, tt.writes) {
				t.Errorf("WriteEndpoints() = %v, want %v", got, tt.writes)
			}
		})
	}
}

func TestLocationCacheUnavailability(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLocationCache("https://default", nil, time.Minute)
	c.now = func() time.Time { return now }
	c.Update(testAccount, "")

	c.MarkUnavailableForRead("https://east")
	if got := c.ReadEndpoints(); !reflect.DeepEqual(got, []string{"https://west", "https://europe", "https://east"}) {
		t.Errorf("ReadEndpoints() = %v", got)
	}
	if got := c.WriteEndpoints(); got[0] != "https://east" {
		t.Errorf("read mark must not affect writes, got %v", got)
	}
	if r, w := c.UnavailableCount(); r != 1 || w != 0 {
		t.Errorf("UnavailableCount() = %d, %d", r, w)
	}

	c.MarkUnavailableForWrite("https://east")
	if got := c.WriteEndpoints(); !reflect.DeepEqual(got, []string{"https://west", "https://east"}) {
		t.Errorf("WriteEndpoints() = %v", got)
	}

	now = now.Add(2 * time.Minute)
	if got := c.ReadEndpoints(); got[0] != "https://east" {
		t.Errorf("mark should expire, got %v", got)
	}
	if r, w := c.UnavailableCount(); r != 0 || w != 0 {
		t.Errorf("UnavailableCount() after expiry = %d, %d", r, w)
	}
}
