// Package media handles the canonical audio format used across the pipeline:
// 16 kHz mono 16-bit PCM, carried as WAV.
package media

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// SampleRate is the canonical sample rate for captured audio.
	SampleRate = 16000
	// Channels is the canonical channel count.
	Channels = 1

	bytesPerSample = 2
	bytesPerSecond = SampleRate * Channels * bytesPerSample

	headerSize = 44

	// MIMEWav identifies fragments in the canonical format.
	MIMEWav = "audio/wav"
)

// Fragment is an immutable piece of captured audio.
type Fragment struct {
	Data []byte
	MIME string
}

// Window is a contiguous slice of audio produced by SplitByDuration.
type Window struct {
	Offset float64 // seconds from the start of the source audio
	WAV    []byte
}

// WrapPCM builds a WAV file around raw 16 kHz mono s16le samples.
func WrapPCM(pcm []byte) []byte {
	buf := make([]byte, headerSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)              // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)               // PCM
	binary.LittleEndian.PutUint16(buf[22:24], Channels)        //
	binary.LittleEndian.PutUint32(buf[24:28], SampleRate)      //
	binary.LittleEndian.PutUint32(buf[28:32], bytesPerSecond)  // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], Channels*bytesPerSample) // block align
	binary.LittleEndian.PutUint16(buf[34:36], 8*bytesPerSample)        // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[headerSize:], pcm)
	return buf
}

// PCM extracts the raw sample data from a WAV file. It scans for the data
// chunk rather than assuming a fixed header layout.
func PCM(wav []byte) ([]byte, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a wav file")
	}

	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if id == "data" {
			end := body + size
			if end > len(wav) {
				end = len(wav)
			}
			return wav[body:end], nil
		}
		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}
	return nil, fmt.Errorf("wav data chunk not found")
}

// DurationSeconds returns the play time of a canonical WAV file.
func DurationSeconds(wav []byte) float64 {
	pcm, err := PCM(wav)
	if err != nil {
		return 0
	}
	return float64(len(pcm)) / bytesPerSecond
}

// Concat joins fragments into a single WAV file. Fragments must be in the
// canonical format; order is preserved.
func Concat(fragments []Fragment) ([]byte, error) {
	var pcm []byte
	for i, f := range fragments {
		p, err := PCM(f.Data)
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		pcm = append(pcm, p...)
	}
	return WrapPCM(pcm), nil
}

// SplitByDuration cuts audio into contiguous windows of at most the given
// length. Windows start at 0, window, 2*window, ... with no gaps or overlap;
// the final window holds the remainder. Empty audio yields no windows.
func SplitByDuration(wav []byte, window time.Duration) ([]Window, error) {
	pcm, err := PCM(wav)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}

	winBytes := int(window.Seconds() * bytesPerSecond)
	winBytes -= winBytes % (Channels * bytesPerSample) // keep frame alignment
	if winBytes <= 0 {
		return nil, fmt.Errorf("window too small")
	}

	count := int(math.Ceil(float64(len(pcm)) / float64(winBytes)))
	windows := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		start := i * winBytes
		end := start + winBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		windows = append(windows, Window{
			Offset: float64(start) / bytesPerSecond,
			WAV:    WrapPCM(pcm[start:end]),
		})
	}
	return windows, nil
}
