package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"rom-stream-go/internal/session"
)

// WriteSessionReport writes one CSV row per tracked movement of a session
// and returns the file name.
func WriteSessionReport(
	outputDir string,
	runTimestamp string,
	sessionID string,
	view session.View,
) (string, error) {
	if err := session.ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_rom.csv", runTimestamp, sessionID))
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}

	_, _ = fmt.Fprintln(f, "body_part, movement_type, min, max, range, frames, valid_frames")
	bodyParts := make([]string, 0, len(view))
	for bp := range view {
		bodyParts = append(bodyParts, bp)
	}
	sort.Strings(bodyParts)
	for _, bp := range bodyParts {
		movements := make([]string, 0, len(view[bp]))
		for mt := range view[bp] {
			movements = append(movements, mt)
		}
		sort.Strings(movements)
		for _, mt := range movements {
			s := view[bp][mt]
			_, _ = fmt.Fprintf(
				f,
				"%s, %s, %.1f, %.1f, %.1f, %d, %d\n",
				bp,
				mt,
				s.ROM.Min,
				s.ROM.Max,
				s.ROM.Range,
				s.FrameCount,
				s.ValidFrameCount,
			)
		}
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return filename, nil
}
