package protocol

import (
	"errors"
	"testing"
)

func TestValidateCloseCode(t *testing.T) {
	tests := []struct {
		code    CloseCode
		wantErr error
	}{
		{2999, ErrInvalidCloseCode},
		{1000, ErrInvalidCloseCode},
		{4000, ErrInvalidCloseCode},
		{0, ErrInvalidCloseCode},
		{3000, nil},
		{3001, nil},
		{3999, nil},
		{CloseHeartbeatTimeout, ErrReservedCloseCode},
	}

	for _, tc := range tests {
		err := ValidateCloseCode(tc.code)
		if tc.wantErr == nil {
			if err != nil {
				t.Errorf("ValidateCloseCode(%d) error = %v, want nil", tc.code, err)
			}
			continue
		}
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("ValidateCloseCode(%d) error = %v, want %v", tc.code, err, tc.wantErr)
		}
	}
}

func TestCloseCodeString(t *testing.T) {
	if got := CloseHeartbeatTimeout.String(); got != "3010 (Ping timeout)" {
		t.Errorf("String() = %q", got)
	}
	if got := CloseCode(3001).String(); got != "3001" {
		t.Errorf("String() = %q", got)
	}
	if got := CloseReason(CloseHeartbeatTimeout); got != "Ping timeout" {
		t.Errorf("CloseReason() = %q", got)
	}
}
