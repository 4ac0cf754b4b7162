package boards

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tphakala/biosignal-go/internal/errors"
)

// ResolveRecording maps a client supplied recording name to a path inside dir.
// Absolute names and names that climb out of dir are rejected.
func ResolveRecording(dir, name string) (string, error) {
	if dir == "" {
		return "", errors.Newf("playback recordings directory not configured").
			Component("boards").
			Category(errors.CategoryValidation).
			Build()
	}
	if name == "" || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", recordingError("recording must be a relative name")
	}

	base, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.New(err).
			Component("boards").
			Category(errors.CategoryFileIO).
			Context("operation", "resolve_recordings_dir").
			Build()
	}
	path := filepath.Join(base, filepath.Clean(name))
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", recordingError("recording is outside the recordings directory")
	}
	return path, nil
}

func recordingError(reason string) error {
	return errors.New(fmt.Errorf("invalid recording: %s", reason)).
		Component("boards").
		Category(errors.CategoryValidation).
		Build()
}
