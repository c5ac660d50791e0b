package scanner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAfs is returned by ParseAfs for strings not in FF-SSU form.
var ErrInvalidAfs = errors.New("invalid afs code")

// LedColors is the palette of LED colors a system or talkgroup may use.
var LedColors = []string{"blue", "cyan", "green", "magenta", "orange", "red", "white", "yellow"}

// ValidLed reports whether color is in the LED palette.
func ValidLed(color string) bool {
	for _, c := range LedColors {
		if c == color {
			return true
		}
	}
	return false
}

// FormatAfs renders a talkgroup id as an AFS code: bits 7-10 and 3-6 as
// two zero-padded fields, bits 0-2 as a trailing digit ("10-113").
func FormatAfs(n int) string {
	return fmt.Sprintf("%02d-%02d%d", n>>7&15, n>>3&15, n&7)
}

// ParseAfs is the inverse of FormatAfs for ids below 2048.
func ParseAfs(s string) (int, error) {
	ff, rest, ok := strings.Cut(s, "-")
	if !ok || len(ff) != 2 || len(rest) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAfs, s)
	}
	a, err := strconv.Atoi(ff)
	if err != nil || a > 15 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAfs, s)
	}
	b, err := strconv.Atoi(rest[:2])
	if err != nil || b > 15 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAfs, s)
	}
	c, err := strconv.Atoi(rest[2:])
	if err != nil || c > 7 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAfs, s)
	}
	return a<<7 | b<<3 | c, nil
}

// IsAfsSystem reports whether the system id appears in the comma-separated
// afs list from the configuration.
func IsAfsSystem(afs string, system int) bool {
	if afs == "" {
		return false
	}
	id := strconv.Itoa(system)
	for _, s := range strings.Split(afs, ",") {
		if strings.TrimSpace(s) == id {
			return true
		}
	}
	return false
}

// FormatFrequency renders a frequency in Hz as "146 520 000 Hz", padded to
// at least nine digits. Returns "" for a nil frequency.
func FormatFrequency(f *int) string {
	if f == nil {
		return ""
	}
	digits := fmt.Sprintf("%09d", *f)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	b.WriteString(" Hz")
	return b.String()
}
