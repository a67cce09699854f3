package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// TranscodeToWAV converts an arbitrary audio or video file to the canonical
// format using ffmpeg. The whole result is returned in memory; recordings of
// meeting length fit comfortably.
func TranscodeToWAV(ctx context.Context, srcPath string) ([]byte, error) {
	if _, err := os.Stat(srcPath); err != nil {
		return nil, fmt.Errorf("source file: %w", err)
	}

	tmp, err := os.CreateTemp("", "notetaker-*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	// ffmpeg -y -i input -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", srcPath,
		"-ac", fmt.Sprint(Channels), "-ar", fmt.Sprint(SampleRate),
		"-f", "wav",
		tmpPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg %s: %w: %s", filepath.Base(srcPath), err, lastLine(stderr.Bytes()))
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read transcoded audio: %w", err)
	}
	return data, nil
}

func lastLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
