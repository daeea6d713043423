package nca

import (
	"encoding/binary"
	"time"
)

// TimestampSize is the width of an encoded timestamp: the 11-byte Oracle
// TIMESTAMP layout followed by the time zone hour and minute.
const TimestampSize = 13

// EncodeTimestamp converts t to the 13-byte wire layout. Date and time
// components are taken in t's own location.
func EncodeTimestamp(t time.Time) []byte {
	b := make([]byte, TimestampSize)
	year := t.Year()
	b[0] = byte(year/100 + 100)
	b[1] = byte(year%100 + 100)
	b[2] = byte(t.Month())
	b[3] = byte(t.Day())
	b[4] = byte(t.Hour() + 1)
	b[5] = byte(t.Minute() + 1)
	b[6] = byte(t.Second() + 1)
	binary.BigEndian.PutUint32(b[7:11], uint32(t.Nanosecond()))

	_, offset := t.Zone()
	b[11] = byte(offset/3600 + 20)
	b[12] = byte((offset%3600)/60 + 60)
	return b
}

// DecodeTimestamp converts the 13-byte layout back to a time.Time. A zero
// offset decodes to UTC; other offsets decode to a fixed zone.
func DecodeTimestamp(b []byte) time.Time {
	year := (int(b[0])-100)*100 + int(b[1]) - 100
	nanos := int(binary.BigEndian.Uint32(b[7:11]))

	offset := (int(b[11])-20)*3600 + (int(b[12])-60)*60
	loc := time.UTC
	if offset != 0 {
		loc = time.FixedZone("", offset)
	}

	return time.Date(year, time.Month(b[2]), int(b[3]),
		int(b[4])-1, int(b[5])-1, int(b[6])-1, nanos, loc)
}
