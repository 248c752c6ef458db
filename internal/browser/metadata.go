package browser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

const metadataFile = "session_metadata.json"

type sessionMetadata struct {
	UserID      int64               `json:"user_id"`
	Platform    models.Platform     `json:"platform"`
	State       models.ProfileState `json:"state"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUsedAt  time.Time           `json:"last_used_at"`
	ConfirmedAt *time.Time          `json:"confirmed_at,omitempty"`
}

// idle reports whether the session went unused for longer than timeout.
func (m *sessionMetadata) idle(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(m.LastUsedAt) > timeout
}

// readMetadata returns ErrNoSession when the profile has no metadata yet.
func readMetadata(dir string, key []byte) (*sessionMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, err
	}

	var meta sessionMetadata
	if err := utils.OpenJSON(string(data), key, &meta); err != nil {
		return nil, fmt.Errorf("decrypt session metadata: %w", err)
	}
	return &meta, nil
}

// writeMetadata replaces the metadata file atomically, readable by the
// owner only.
func writeMetadata(dir string, key []byte, meta *sessionMetadata) error {
	sealed, err := utils.SealJSON(meta, key)
	if err != nil {
		return fmt.Errorf("encrypt session metadata: %w", err)
	}

	tmp := filepath.Join(dir, metadataFile+".tmp")
	if err := os.WriteFile(tmp, []byte(sealed), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, metadataFile))
}
