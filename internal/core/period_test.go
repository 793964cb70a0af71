package core

import "testing"

func TestPeriodBounds(t *testing.T) {
	cases := []struct {
		p           Period
		first, last string
	}{
		{Period{Year: 2024, Month: 11}, "2024-11-01", "2024-11-30"},
		{Period{Year: 2024, Month: 2}, "2024-02-01", "2024-02-29"},
		{Period{Year: 2023, Month: 2}, "2023-02-01", "2023-02-28"},
		{Period{Year: 2024, Month: 12}, "2024-12-01", "2024-12-31"},
	}
	for _, tc := range cases {
		if got := tc.p.FirstDay().String(); got != tc.first {
			t.Fatalf("%v first = %s, want %s", tc.p, got, tc.first)
		}
		if got := tc.p.LastDay().String(); got != tc.last {
			t.Fatalf("%v last = %s, want %s", tc.p, got, tc.last)
		}
	}
}

func TestPeriodNavigation(t *testing.T) {
	jan := Period{Year: 2025, Month: 1}
	if prev := jan.Previous(); prev != (Period{Year: 2024, Month: 12}) {
		t.Fatalf("previous of jan = %v", prev)
	}
	if next := (Period{Year: 2024, Month: 12}).Next(); next != jan {
		t.Fatalf("next of dec = %v", next)
	}
	if jan.Key() != "2025-01" || jan.Label() != "January 2025" {
		t.Fatalf("key=%s label=%s", jan.Key(), jan.Label())
	}
	if !jan.Contains(NewDate(2025, 1, 31)) || jan.Contains(NewDate(2025, 2, 1)) {
		t.Fatalf("contains mismatch")
	}
}

func TestPeriodValidate(t *testing.T) {
	if err := (Period{Year: 2024, Month: 13}).Validate(); err == nil {
		t.Fatalf("expected error for month 13")
	}
	if err := (Period{Year: 2024, Month: 0}).Validate(); err == nil {
		t.Fatalf("expected error for month 0")
	}
	if err := (Period{Year: 2024, Month: 6}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
