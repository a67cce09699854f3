package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/sai-itkc2020/ai-notetaker/internal/media"
)

// Input provides access to audio capture devices. Open returns a stream of
// raw samples in the canonical format (16 kHz mono s16le).
type Input interface {
	Devices(ctx context.Context) ([]string, error)
	Open(ctx context.Context, device string) (io.ReadCloser, error)
}

// FFmpegInput captures audio by running ffmpeg against a device of the
// configured input format (pulse, alsa, avfoundation, ...).
type FFmpegInput struct {
	Format string
	logger *zap.SugaredLogger
}

// NewFFmpegInput creates an input for the given ffmpeg device format.
func NewFFmpegInput(format string, logger *zap.SugaredLogger) *FFmpegInput {
	return &FFmpegInput{Format: format, logger: logger}
}

// Devices lists capture sources reported by ffmpeg. Falls back to a single
// "default" device when the format doesn't support enumeration.
func (f *FFmpegInput) Devices(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-sources", f.Format)
	out, err := cmd.CombinedOutput()
	devices := parseSources(out)
	if len(devices) == 0 {
		if err != nil {
			f.logger.Debugw("device enumeration unavailable", "format", f.Format, "error", err)
		}
		return []string{"default"}, nil
	}
	return devices, nil
}

// parseSources extracts device names from `ffmpeg -sources` output. Lines
// look like "  alsa_input.pci-0000_00_1f.3 [Built-in Audio]".
func parseSources(out []byte) []string {
	var devices []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, " ") {
			continue // header lines
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name := strings.TrimPrefix(fields[0], "*")
		if name == "" || strings.HasPrefix(name, "[") {
			continue
		}
		devices = append(devices, name)
	}
	return devices
}

// Open starts an ffmpeg capture process streaming raw samples on stdout.
// Closing the returned reader terminates the process.
func (f *FFmpegInput) Open(ctx context.Context, device string) (io.ReadCloser, error) {
	if device == "" {
		device = "default"
	}

	// ffmpeg -f pulse -i <device> -ac 1 -ar 16000 -f s16le -
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", f.Format, "-i", device,
		"-ac", fmt.Sprint(media.Channels), "-ar", fmt.Sprint(media.SampleRate),
		"-f", "s16le", "-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start capture on %q: %v", ErrDeviceUnavailable, device, err)
	}

	f.logger.Infow("capture started", "format", f.Format, "device", device)
	return &processReader{r: stdout, cmd: cmd, stderr: &stderr}, nil
}

// processReader reads ffmpeg stdout and reaps the process on Close.
type processReader struct {
	r      io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

func (p *processReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if err == io.EOF {
		// The process exiting on its own means the device went away.
		if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
			return n, fmt.Errorf("%w: %s", ErrDeviceUnavailable, lastLine(msg))
		}
	}
	return n, err
}

func (p *processReader) Close() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return p.r.Close()
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
