package admission

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsContention(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped lock timeout", fmt.Errorf("reserve: %w", &pgconn.PgError{Code: "55P03"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isContention(tt.err); got != tt.want {
			t.Errorf("%s: isContention = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLimitErrorDistinctFromContention(t *testing.T) {
	// the two refusal kinds must stay distinguishable: only the limit is
	// user-visible, contention is skipped silently
	var le *LimitError
	err := fmt.Errorf("open: %w", &LimitError{Used: 10, Max: 10})
	if !errors.As(err, &le) {
		t.Fatal("LimitError must survive wrapping")
	}
	if le.Used != 10 || le.Max != 10 {
		t.Fatalf("limit error = %+v", le)
	}
	if errors.Is(err, ErrContention) {
		t.Fatal("a limit refusal must never read as contention")
	}
}
