package enums

import "testing"

func TestRestockStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to RestockStatus
		want     bool
	}{
		{RestockStatusPending, RestockStatusApproved, true},
		{RestockStatusPending, RestockStatusRejected, true},
		{RestockStatusApproved, RestockStatusFulfilled, true},
		{RestockStatusPending, RestockStatusFulfilled, false},
		{RestockStatusApproved, RestockStatusRejected, false},
		{RestockStatusFulfilled, RestockStatusApproved, false},
		{RestockStatusRejected, RestockStatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}

	if !RestockStatusFulfilled.IsTerminal() || !RestockStatusRejected.IsTerminal() {
		t.Fatal("fulfilled and rejected must be terminal")
	}
	if RestockStatusPending.IsTerminal() || RestockStatusApproved.IsTerminal() {
		t.Fatal("pending and approved must not be terminal")
	}
}
