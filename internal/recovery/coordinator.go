// Package recovery turns chunk-log leftovers from a crashed capture into a
// resumable recording offer.
package recovery

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sai-itkc2020/ai-notetaker/internal/media"
	"github.com/sai-itkc2020/ai-notetaker/internal/store"
)

// ErrNoPending is returned when there is no unresolved recovery offer.
var ErrNoPending = errors.New("no recovery pending")

// ChunkLog is the slice of the store the coordinator reads and clears.
type ChunkLog interface {
	Chunks() ([]store.Chunk, error)
	ChunkCount() (int, error)
	ClearChunks() error
}

// Offer describes audio found in the chunk log at startup.
type Offer struct {
	SessionID string
	Chunks    int
	Seconds   float64
	StartedAt time.Time
}

// Coordinator detects an interrupted recording and arbitrates its
// resolution. An offer is resolved at most once per process: after a
// successful Resume or Discard both report ErrNoPending.
type Coordinator struct {
	log    ChunkLog
	logger *zap.SugaredLogger

	mu    sync.Mutex
	offer *Offer
}

func New(log ChunkLog, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{log: log, logger: logger}
}

// Detect inspects the chunk log and records an offer when leftovers exist.
// Called once at startup, before any capture begins.
func (c *Coordinator) Detect() (*Offer, error) {
	count, err := c.log.ChunkCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	chunks, err := c.log.Chunks()
	if err != nil {
		return nil, err
	}

	offer := &Offer{Chunks: len(chunks)}
	for _, ch := range chunks {
		offer.Seconds += media.DurationSeconds(ch.Data)
	}
	if len(chunks) > 0 {
		offer.SessionID = chunks[0].SessionID
		offer.StartedAt = chunks[0].CreatedAt
	}

	c.mu.Lock()
	c.offer = offer
	c.mu.Unlock()

	c.logger.Infow("interrupted recording found",
		"session", offer.SessionID, "chunks", offer.Chunks, "seconds", offer.Seconds)
	return c.snapshot(), nil
}

// Pending returns the unresolved offer, or nil.
func (c *Coordinator) Pending() *Offer {
	return c.snapshot()
}

func (c *Coordinator) snapshot() *Offer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offer == nil {
		return nil
	}
	cp := *c.offer
	return &cp
}

// Resume consumes the offer and returns the recovered fragments in capture
// order, ready for transcription. The chunk log is left intact; the caller
// clears it once the resumed session has been persisted, so a crash during
// the resume itself loses nothing.
func (c *Coordinator) Resume() ([]media.Fragment, *Offer, error) {
	c.mu.Lock()
	if c.offer == nil {
		c.mu.Unlock()
		return nil, nil, ErrNoPending
	}
	offer := *c.offer
	c.mu.Unlock()

	chunks, err := c.log.Chunks()
	if err != nil {
		// Unresolved: the user may retry.
		return nil, nil, err
	}

	fragments := make([]media.Fragment, 0, len(chunks))
	for _, ch := range chunks {
		fragments = append(fragments, media.Fragment{Data: ch.Data, MIME: ch.MIME})
	}

	c.mu.Lock()
	c.offer = nil
	c.mu.Unlock()

	c.logger.Infow("resuming interrupted recording", "session", offer.SessionID, "chunks", len(fragments))
	return fragments, &offer, nil
}

// Discard consumes the offer and clears the chunk log.
func (c *Coordinator) Discard() error {
	c.mu.Lock()
	if c.offer == nil {
		c.mu.Unlock()
		return ErrNoPending
	}
	offer := *c.offer
	c.mu.Unlock()

	if err := c.log.ClearChunks(); err != nil {
		return err
	}

	c.mu.Lock()
	c.offer = nil
	c.mu.Unlock()

	c.logger.Infow("discarded interrupted recording", "session", offer.SessionID, "chunks", offer.Chunks)
	return nil
}
