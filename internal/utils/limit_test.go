package utils

import "testing"

func TestParseLimit(t *testing.T) {
	cases := []struct {
		s       string
		want    int
		wantErr bool
	}{
		// empty -> default
		{"", 10, false},
		{"   ", 10, false},
		// in range, bounds inclusive
		{"1", 1, false},
		{"50", 50, false},
		{" 25 ", 25, false},
		{"0012", 12, false},
		// out of range
		{"0", 0, true},
		{"51", 0, true},
		{"-3", 0, true},
		// not integers
		{"x", 0, true},
		{"2.5", 0, true},
		{"999999999999999999999999", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseLimit(tc.s, 10, 1, 50)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseLimit(%q) err = %v; wantErr %v", tc.s, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseLimit(%q) = %d; want %d", tc.s, got, tc.want)
		}
	}
}
