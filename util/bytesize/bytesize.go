// Package bytesize parses memory limits such as "300MB" or "1.5GiB" from configuration.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bsv-blockchain/chainstate/errors"
)

// ByteSize is a memory size in bytes.
type ByteSize int64

const (
	B  ByteSize = 1
	KB          = B * 1000
	MB          = KB * 1000
	GB          = MB * 1000
	TB          = GB * 1000

	KiB = B * 1024
	MiB = KiB * 1024
	GiB = MiB * 1024
)

var units = map[string]ByteSize{
	"":    B,
	"B":   B,
	"K":   KB,
	"KB":  KB,
	"M":   MB,
	"MB":  MB,
	"G":   GB,
	"GB":  GB,
	"T":   TB,
	"TB":  TB,
	"KIB": KiB,
	"MIB": MiB,
	"GIB": GiB,
}

// Parse reads a decimal number followed by an optional unit. Units without
// the "i" infix are powers of 1000.
func Parse(s string) (ByteSize, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})

	numPart, unit := s, ""
	if i != -1 {
		numPart, unit = s[:i], strings.TrimSpace(s[i:])
	}

	num, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, errors.NewInvalidArgumentError("invalid byte size %q", s, err)
	}

	if num < 0 {
		return 0, errors.NewInvalidArgumentError("negative byte size %q", s)
	}

	mult, ok := units[unit]
	if !ok {
		return 0, errors.NewInvalidArgumentError("invalid unit %q", unit)
	}

	return ByteSize(num * float64(mult)), nil
}

func (b ByteSize) String() string {
	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func (b ByteSize) Int64() int64 {
	return int64(b)
}
