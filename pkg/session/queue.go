package session

import (
	"fmt"
	"strings"
)

type trackKind int

const (
	kindChunk trackKind = iota
	kindFiller
	kindFull
)

// queueItem is one ready-to-speak unit of the sentence queue.
type queueItem struct {
	text string
	kind trackKind
}

// labelLocked assigns the track label for a dequeued item. Chunk and filler
// counters are monotonic per session.
func (s *Session) labelLocked(kind trackKind) string {
	switch kind {
	case kindFiller:
		s.fillerSeq++
		return fmt.Sprintf("filler-%d", s.fillerSeq)
	case kindFull:
		return "full-response"
	default:
		s.chunkSeq++
		return fmt.Sprintf("chunk-%d", s.chunkSeq)
	}
}

// flushPendingLocked moves the accumulated pending batch into the sentence
// queue as a single space-joined unit. The batch is never spoken directly.
func (s *Session) flushPendingLocked() {
	if len(s.pendingBatch) == 0 {
		return
	}
	text := strings.Join(s.pendingBatch, " ")
	s.pendingBatch = nil
	s.sentenceQueue = append(s.sentenceQueue, queueItem{text: text, kind: kindChunk})
}

// maybeStartDrainLocked spawns the drain loop when the queue has work and
// nothing is speaking. The speaking flag is the single-flight guard.
func (s *Session) maybeStartDrainLocked() {
	if s.speaking || !s.connected || len(s.sentenceQueue) == 0 {
		return
	}
	s.speaking = true
	go s.drain(s.gen)
}
