// file: pkg/bytesize/bytesize.go

// Package bytesize parses and formats block and file sizes such as "4KB".
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Binary size units
const (
	B  int64 = 1
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
)

var sizePattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([a-zA-Z]*)\s*$`)

var multipliers = map[string]int64{
	"":   B,
	"B":  B,
	"K":  KB,
	"KB": KB,
	"KI": KB,
	"M":  MB,
	"MB": MB,
	"MI": MB,
	"G":  GB,
	"GB": GB,
	"GI": GB,
}

// Parse converts "4KB", "1.5 MB" or "1024" to bytes. Units are binary and
// case-insensitive; a bare number is bytes.
func Parse(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty size string")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", m[1], err)
	}

	mult, ok := multipliers[strings.ToUpper(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown unit: %q", m[2])
	}
	return int64(value * float64(mult)), nil
}

// Format renders a byte count with two decimals in the largest unit that fits
func Format(bytes int64) string {
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	}
	return fmt.Sprintf("%d B", bytes)
}

// Size is a byte count read from YAML as a number of bytes or a string
// with a unit
type Size int64

// UnmarshalYAML implements yaml.Unmarshaler
func (s *Size) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err == nil {
		n, err := Parse(str)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", str, err)
		}
		*s = Size(n)
		return nil
	}

	var n int64
	if err := unmarshal(&n); err != nil {
		return fmt.Errorf("size must be a number of bytes or a string such as 4KB")
	}
	*s = Size(n)
	return nil
}

// MarshalYAML writes the size back in its human form when it is a whole
// number of kilobytes
func (s Size) MarshalYAML() (interface{}, error) {
	n := int64(s)
	switch {
	case n > 0 && n%MB == 0:
		return fmt.Sprintf("%dMB", n/MB), nil
	case n > 0 && n%KB == 0:
		return fmt.Sprintf("%dKB", n/KB), nil
	}
	return n, nil
}

// Bytes returns the size in bytes
func (s Size) Bytes() int64 {
	return int64(s)
}

// KB returns the size in whole kilobytes, rounded down
func (s Size) KB() int {
	return int(int64(s) / KB)
}

func (s Size) String() string {
	return Format(int64(s))
}
