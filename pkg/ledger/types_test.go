package ledger

import (
	"errors"
	"testing"
)

func TestNewUserID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		wantVal string
	}{
		{name: "valid", input: " user-123 ", wantVal: "user-123"},
		{name: "empty", input: "   ", wantErr: ErrInvalidUserID},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := NewUserID(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				t.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestNewPositivePoints(t *testing.T) {
	t.Parallel()
	for _, raw := range []int64{0, -5} {
		if _, err := NewPositivePoints(raw); !errors.Is(err, ErrInvalidPoints) {
			t.Fatalf("expected ErrInvalidPoints for %d, got %v", raw, err)
		}
	}
	amount, err := NewPositivePoints(50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount.ToPoints() != 50 || amount.Negated() != -50 {
		t.Fatalf("unexpected conversions: %d %d", amount.ToPoints(), amount.Negated())
	}
}

func TestNewReason(t *testing.T) {
	t.Parallel()
	if _, err := NewReason(" "); !errors.Is(err, ErrInvalidReason) {
		t.Fatalf("expected ErrInvalidReason, got %v", err)
	}
}

func TestNewReference(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		refType  string
		refID    string
		wantErr  error
		wantZero bool
	}{
		{name: "empty", wantZero: true},
		{name: "complete", refType: "redemption_code", refID: "code-1"},
		{name: "missing id", refType: "redemption_code", wantErr: ErrInvalidReference},
		{name: "missing type", refID: "code-1", wantErr: ErrInvalidReference},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reference, err := NewReference(tc.refType, tc.refID)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if reference.IsZero() != tc.wantZero {
				t.Fatalf("expected zero=%v, got %+v", tc.wantZero, reference)
			}
		})
	}
}

func TestBalanceValidate(t *testing.T) {
	t.Parallel()
	if err := (Balance{Balance: 30, TotalEarned: 50, TotalSpent: 20}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Balance{Balance: -1, TotalEarned: 0, TotalSpent: 1}).Validate(); !errors.Is(err, ErrInvalidBalance) {
		t.Fatalf("expected ErrInvalidBalance for negative balance, got %v", err)
	}
	if err := (Balance{Balance: 10, TotalEarned: 50, TotalSpent: 20}).Validate(); !errors.Is(err, ErrInvalidBalance) {
		t.Fatalf("expected ErrInvalidBalance for drift, got %v", err)
	}
}
