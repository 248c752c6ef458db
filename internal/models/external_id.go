package models

import (
	"fmt"
	"strings"
	"time"
)

const syntheticPrefix = "local:"

// NewSyntheticExternalID builds the identifier recorded for posts submitted
// through a web UI, where the platform's own post id is not observable.
// Synthetic ids never match real engagement data.
func NewSyntheticExternalID(platform Platform, now time.Time) string {
	return fmt.Sprintf("%s%s:%d", syntheticPrefix, platform, now.UnixNano())
}

func IsSyntheticExternalID(id string) bool {
	return strings.HasPrefix(id, syntheticPrefix)
}
