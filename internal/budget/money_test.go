package budget

import "testing"

func TestUsdcToSmallest(t *testing.T) {
	cases := []struct {
		usdc    string
		want    string
		wantErr bool
	}{
		{"0.01", "10000", false},
		{"100", "100000000", false},
		{"0", "0", false},
		{"0.000001", "1", false},
		{"1.00", "1000000", false},
		{"5.50", "5500000", false},
		{".5", "500000", false},
		{"123456789.123456", "123456789123456", false},
		{"0.0000001", "", true}, // too many decimal places
		{"-1", "", true},
		{"", "", true},
		{"abc", "", true},
		{"1.2.3", "", true},
	}

	for _, tc := range cases {
		got, err := UsdcToSmallest(tc.usdc)
		if tc.wantErr {
			if err == nil {
				t.Errorf("UsdcToSmallest(%q): expected error, got %q", tc.usdc, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("UsdcToSmallest(%q): unexpected error: %v", tc.usdc, err)
			continue
		}
		if got != tc.want {
			t.Errorf("UsdcToSmallest(%q) = %q, want %q", tc.usdc, got, tc.want)
		}
	}
}

func TestSmallestToUsdc(t *testing.T) {
	cases := []struct {
		smallest string
		want     string
	}{
		{"0", "0.00"},
		{"1", "0.000001"},
		{"10000", "0.01"},
		{"1000000", "1.00"},
		{"5500000", "5.50"},
		{"100000000", "100.00"},
		{"123456789123456", "123456789.123456"},
	}

	for _, tc := range cases {
		got, err := SmallestToUsdc(tc.smallest)
		if err != nil {
			t.Errorf("SmallestToUsdc(%q): unexpected error: %v", tc.smallest, err)
			continue
		}
		if got != tc.want {
			t.Errorf("SmallestToUsdc(%q) = %q, want %q", tc.smallest, got, tc.want)
		}
	}

	if _, err := SmallestToUsdc("1.5"); err == nil {
		t.Error("Expected error for non-integer smallest-unit amount")
	}
	if _, err := SmallestToUsdc("-1"); err == nil {
		t.Error("Expected error for negative smallest-unit amount")
	}
}

func TestConversionRoundTrip(t *testing.T) {
	for _, smallest := range []string{"0", "1", "10", "10000", "999999", "1000000", "123456789123456"} {
		usdc, err := SmallestToUsdc(smallest)
		if err != nil {
			t.Fatalf("SmallestToUsdc(%q): %v", smallest, err)
		}
		back, err := UsdcToSmallest(usdc)
		if err != nil {
			t.Fatalf("UsdcToSmallest(%q): %v", usdc, err)
		}
		if back != smallest {
			t.Errorf("Round trip %q -> %q -> %q", smallest, usdc, back)
		}
	}
}
