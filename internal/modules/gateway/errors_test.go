package gateway

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantSoft      bool
		wantTransient bool
	}{
		{"size below minimum", &apiError{Code: "51020", HTTP: 200}, true, false},
		{"lot size mismatch", &apiError{Code: "51121", HTTP: 200}, true, false},
		{"rate limited", &apiError{Code: "50011", HTTP: 200}, false, true},
		{"http 429", &apiError{Code: "0", HTTP: 429}, false, true},
		{"http 503", &apiError{Code: "0", HTTP: 503}, false, true},
		{"unknown venue code", &apiError{Code: "99999", HTTP: 200}, false, false},
		{"plain error", errors.New("connection reset"), false, true},
		{"wrapped soft reject", fmt.Errorf("place: %w", &apiError{Code: "51000"}), true, false},
	}
	for _, tt := range tests {
		if got := IsSoftReject(tt.err); got != tt.wantSoft {
			t.Errorf("%s: IsSoftReject = %v, want %v", tt.name, got, tt.wantSoft)
		}
		if got := IsTransient(tt.err); got != tt.wantTransient {
			t.Errorf("%s: IsTransient = %v, want %v", tt.name, got, tt.wantTransient)
		}
	}
}
