package scanner

import (
	"errors"
	"testing"
)

func TestFormatFrequency(t *testing.T) {
	tests := []struct {
		name string
		in   *int
		want string
	}{
		{name: "vhf", in: Int(146520000), want: "146 520 000 Hz"},
		{name: "nil", in: nil, want: ""},
		{name: "zero_padded", in: Int(0), want: "000 000 000 Hz"},
		{name: "short_padded", in: Int(4600), want: "000 004 600 Hz"},
		{name: "ten_digits", in: Int(1234567890), want: "1 234 567 890 Hz"},
		{name: "uhf", in: Int(851012500), want: "851 012 500 Hz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatFrequency(tt.in); got != tt.want {
				t.Errorf("FormatFrequency = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatAfs(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want string
	}{
		{name: "zero", in: 0, want: "00-000"},
		{name: "sample", in: 1371, want: "10-113"},
		{name: "max", in: 2047, want: "15-157"},
		{name: "high_bits_ignored", in: 2048 + 1371, want: "10-113"},
		{name: "unit_only", in: 5, want: "00-005"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAfs(tt.in); got != tt.want {
				t.Errorf("FormatAfs(%d) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAfsRoundTrip(t *testing.T) {
	for id := 0; id < 2048; id++ {
		code := FormatAfs(id)
		got, err := ParseAfs(code)
		if err != nil {
			t.Fatalf("ParseAfs(%q): %v", code, err)
		}
		if got != id {
			t.Fatalf("ParseAfs(FormatAfs(%d)) = %d", id, got)
		}
		if again := FormatAfs(got); again != code {
			t.Fatalf("FormatAfs not idempotent for %d: %q vs %q", id, code, again)
		}
	}
}

func TestParseAfsInvalid(t *testing.T) {
	for _, s := range []string{"", "10113", "1-113", "10-11", "16-000", "00-160", "00-008", "aa-bbc"} {
		if _, err := ParseAfs(s); !errors.Is(err, ErrInvalidAfs) {
			t.Errorf("ParseAfs(%q) err = %v, want ErrInvalidAfs", s, err)
		}
	}
}

func TestIsAfsSystem(t *testing.T) {
	tests := []struct {
		name   string
		afs    string
		system int
		want   bool
	}{
		{name: "empty_list", afs: "", system: 1, want: false},
		{name: "single", afs: "7", system: 7, want: true},
		{name: "in_list", afs: "1,7,12", system: 12, want: true},
		{name: "spaces", afs: "1, 7 ,12", system: 7, want: true},
		{name: "prefix_not_match", afs: "12", system: 1, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAfsSystem(tt.afs, tt.system); got != tt.want {
				t.Errorf("IsAfsSystem(%q, %d) = %v, want %v", tt.afs, tt.system, got, tt.want)
			}
		})
	}
}

func TestValidLed(t *testing.T) {
	for _, c := range LedColors {
		if !ValidLed(c) {
			t.Errorf("ValidLed(%q) = false", c)
		}
	}
	for _, c := range []string{"", "purple", "Blue"} {
		if ValidLed(c) {
			t.Errorf("ValidLed(%q) = true", c)
		}
	}
}
