// Package entities contains core domain data structures.
package entities

import (
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tid is a Thomas-Institut entity id: a positive 64-bit integer derived from
// the millisecond clock at generation time. Entities, statements and
// cancellations all draw their ids from the same space.
type Tid int64

// MaxTid is the largest valid TID (2^60 - 1). Keeping TIDs within 60 bits
// guarantees the 1:1 mapping to UUIDs.
const MaxTid Tid = 1<<60 - 1

// ErrInvalidTid is returned when a string or UUID does not encode a valid TID.
var ErrInvalidTid = errors.New("invalid tid")

// Valid reports whether t is within the valid TID range. Zero is never valid.
func (t Tid) Valid() bool {
	return t > 0 && t <= MaxTid
}

// TidFromTime returns the TID for the given instant.
func TidFromTime(ts time.Time) Tid {
	return Tid(ts.UnixMilli())
}

// Time returns the instant encoded in the TID.
func (t Tid) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// String returns the base-10 representation.
func (t Tid) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// Base36 returns the canonical base-36 representation: upper case, padded to
// 8 characters, with a cosmetic dash before the last four characters when
// dash is true (e.g. 1735941183123 => "M5HA-K5G3").
func (t Tid) Base36(dash bool) string {
	s := strings.ToUpper(strconv.FormatInt(int64(t), 36))
	if len(s) < 8 {
		s = strings.Repeat("0", 8-len(s)) + s
	}
	if !dash {
		return s
	}
	cut := len(s) - 4
	return s[:cut] + "-" + s[cut:]
}

// ParseTid converts a string to a TID.
//
// Strings made only of digits whose length is at most 7 or at least 10 are
// read as base 10; anything else is read as base 36 with dashes and dots
// ignored. Generated TIDs have 8 or 9 base-36 characters for the foreseeable
// future, which makes the two readings unambiguous in practice.
func ParseTid(s string) (Tid, error) {
	if s == "" {
		return 0, ErrInvalidTid
	}
	if allDigits(s) && (len(s) <= 7 || len(s) >= 10) {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || !Tid(v).Valid() {
			return 0, ErrInvalidTid
		}
		return Tid(v), nil
	}
	clean := strings.NewReplacer("-", "", ".", "").Replace(s)
	v, err := strconv.ParseInt(strings.ToLower(clean), 36, 64)
	if err != nil || !Tid(v).Valid() {
		return 0, ErrInvalidTid
	}
	return Tid(v), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// UUID returns the UUID equivalent of the TID for the given 48-bit node id.
// The TID occupies the 60-bit timestamp of a version 1 UUID.
func (t Tid) UUID(node uint64) uuid.UUID {
	var u uuid.UUID
	v := uint64(t)
	binary.BigEndian.PutUint32(u[0:4], uint32(v))
	binary.BigEndian.PutUint16(u[4:6], uint16(v>>32))
	binary.BigEndian.PutUint16(u[6:8], uint16(v>>48)&0x0fff|0x1000)
	u[8] = 0x80
	u[9] = 0x00
	for i := 0; i < 6; i++ {
		u[15-i] = byte(node >> (8 * i))
	}
	return u
}

// TidFromUUID recovers the TID from a UUID built with Tid.UUID.
func TidFromUUID(u uuid.UUID) (Tid, error) {
	if u.Version() != 1 {
		return 0, ErrInvalidTid
	}
	low := uint64(binary.BigEndian.Uint32(u[0:4]))
	mid := uint64(binary.BigEndian.Uint16(u[4:6]))
	high := uint64(binary.BigEndian.Uint16(u[6:8]) & 0x0fff)
	t := Tid(high<<48 | mid<<32 | low)
	if !t.Valid() {
		return 0, ErrInvalidTid
	}
	return t, nil
}
