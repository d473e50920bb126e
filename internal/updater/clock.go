package updater

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so index timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

const timestampLayout = "20060102150405"

// Timestamp encodes t as the yyyyMMddHHmmss integer used for file versions.
func Timestamp(t time.Time) int64 {
	ts, _ := strconv.ParseInt(t.UTC().Format(timestampLayout), 10, 64)
	return ts
}

// ParseTimestamp decodes a yyyyMMddHHmmss integer.
func ParseTimestamp(ts int64) (time.Time, error) {
	t, err := time.Parse(timestampLayout, strconv.FormatInt(ts, 10))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %d: %w", ts, err)
	}
	return t, nil
}
