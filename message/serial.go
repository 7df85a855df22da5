package message

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/pkg/timestamp"
)

// Serial is a globally comparable message identifier encoding creation
// order. Its canonical form is
//
//	<14-digit millisecond timestamp>-<3-digit sequence>@<origin>
//
// The fixed-width numeric fields make lexicographic order coincide
// with chronological order, so valid serials compare correctly both as
// strings and through Compare.
type Serial string

const (
	serialTimestampWidth = 14
	serialSequenceWidth  = 3
)

// NewSerial builds a serial from its parts. The sequence disambiguates
// serials minted within the same millisecond by the same origin.
func NewSerial(ms int64, seq int, origin string) Serial {
	return Serial(fmt.Sprintf("%0*d-%0*d@%s", serialTimestampWidth, ms, serialSequenceWidth, seq, origin))
}

type serialParts struct {
	ms     int64
	seq    int
	origin string
}

func (s Serial) parse() (serialParts, error) {
	var parts serialParts

	at := strings.IndexByte(string(s), '@')
	if at < 0 {
		return parts, errors.BadRequestf("malformed serial %q: missing origin separator", s)
	}
	head, origin := string(s[:at]), string(s[at+1:])
	if origin == "" {
		return parts, errors.BadRequestf("malformed serial %q: empty origin", s)
	}

	dash := strings.IndexByte(head, '-')
	if dash != serialTimestampWidth || len(head) != serialTimestampWidth+1+serialSequenceWidth {
		return parts, errors.BadRequestf("malformed serial %q: bad field widths", s)
	}

	ms, err := strconv.ParseInt(head[:dash], 10, 64)
	if err != nil {
		return parts, errors.BadRequestf("malformed serial %q: non-numeric timestamp", s)
	}
	seq, err := strconv.Atoi(head[dash+1:])
	if err != nil {
		return parts, errors.BadRequestf("malformed serial %q: non-numeric sequence", s)
	}

	parts.ms = ms
	parts.seq = seq
	parts.origin = origin
	return parts, nil
}

// Validate reports whether the serial is structurally well formed.
func (s Serial) Validate() error {
	_, err := s.parse()
	return err
}

// Time returns the creation time encoded in the serial.
func (s Serial) Time() (time.Time, error) {
	parts, err := s.parse()
	if err != nil {
		return time.Time{}, err
	}
	return timestamp.FromUnixMs(parts.ms), nil
}

// Compare strictly orders two serials: -1 when s precedes o, +1 when s
// follows o, 0 when equal. Ordering is meaningless for malformed
// serials, so either side failing validation is an error.
func (s Serial) Compare(o Serial) (int, error) {
	a, err := s.parse()
	if err != nil {
		return 0, err
	}
	b, err := o.parse()
	if err != nil {
		return 0, err
	}

	switch {
	case a.ms != b.ms:
		return sign(a.ms - b.ms), nil
	case a.seq != b.seq:
		return sign(int64(a.seq - b.seq)), nil
	default:
		return strings.Compare(a.origin, b.origin), nil
	}
}

// Before reports whether s strictly precedes o.
func (s Serial) Before(o Serial) (bool, error) {
	cmp, err := s.Compare(o)
	return cmp < 0, err
}

// After reports whether s strictly follows o.
func (s Serial) After(o Serial) (bool, error) {
	cmp, err := s.Compare(o)
	return cmp > 0, err
}

func sign(v int64) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
