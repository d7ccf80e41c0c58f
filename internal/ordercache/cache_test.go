package ordercache

import (
	"fmt"
	"testing"
	"time"

	"trade_engine/internal/models"
)

func TestUpdateNormalizesStatus(t *testing.T) {
	c := New(time.Minute, 10)

	tests := []struct {
		raw  string
		want models.OrderStatus
	}{
		{"FILLED", models.OrderClosed},
		{"filled", models.OrderClosed},
		{"2", models.OrderClosed},
		{"CANCELED", models.OrderCanceled},
		{"cancelled", models.OrderCanceled},
		{"live", models.OrderOpen},
		{"something_new", models.OrderOpen}, // unknown is never a fill
	}
	for i, tt := range tests {
		id := fmt.Sprintf("ord-%d", i)
		c.Update(id, "okx", "BTC-USDT-SWAP", tt.raw, 1, 100)
		st, ok := c.Get(id, "okx")
		if !ok {
			t.Fatalf("%q: entry missing", tt.raw)
		}
		if st.Status != tt.want {
			t.Errorf("%q: status = %q, want %q", tt.raw, st.Status, tt.want)
		}
	}
}

func TestGetTreatsExpiredAsAbsent(t *testing.T) {
	c := New(10*time.Millisecond, 10)
	c.Update("ord-1", "okx", "BTC-USDT-SWAP", "FILLED", 1, 100)

	if _, ok := c.Get("ord-1", "okx"); !ok {
		t.Fatal("fresh entry must be visible")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("ord-1", "okx"); ok {
		t.Fatal("expired entry must read as absent even before eviction")
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, lazy expiry should not have removed the entry yet", c.Len())
	}
}

func TestUpdateEvictsOldestOverCapacity(t *testing.T) {
	c := New(time.Minute, 3)

	for i := 0; i < 4; i++ {
		c.Update(fmt.Sprintf("ord-%d", i), "okx", "BTC-USDT-SWAP", "live", 0, 0)
		time.Sleep(time.Millisecond) // distinct UpdatedAt ordering
	}

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want capacity 3", c.Len())
	}
	if _, ok := c.Get("ord-0", "okx"); ok {
		t.Fatal("oldest entry must be the one evicted")
	}
	if _, ok := c.Get("ord-3", "okx"); !ok {
		t.Fatal("newest entry must survive eviction")
	}
}

func TestKeysAreScopedByExchange(t *testing.T) {
	c := New(time.Minute, 10)
	c.Update("ord-1", "okx", "BTC-USDT-SWAP", "FILLED", 1, 100)

	if _, ok := c.Get("ord-1", "binance"); ok {
		t.Fatal("same order id on another exchange must miss")
	}
}
