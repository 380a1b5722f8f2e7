// Package session holds the per-client state shared by the inbound
// command loop and the upstream event loop.
package session

import (
	"sync"

	contractx "github.com/mediminds/voicerelay/relay/contract"
)

// ClientSession is the single owned record for one connected client:
// transport handles, the last-known upstream session descriptor, the
// transcript accumulator, and the trust window that decides which
// in-flight upstream events are still live after an interruption.
//
// The trust window works on item ids: validItems is cleared whenever a
// new response starts upstream or the user interrupts, and the first
// audio delta seen after a clear is admitted unconditionally. That
// first-after-reset amnesty can, under adversarial interleaving around
// the reset boundary, admit an item of a just-superseded response; the
// behavior is kept as-is rather than tightened.
type ClientSession struct {
	id string

	mu       sync.Mutex
	client   contractx.ClientConn
	upstream contractx.Upstream

	info            map[string]any
	transcripts     map[string]string
	lastAudioItemID string
	acceptAudio     bool
	validItems      map[string]struct{}
	generation      uint64

	// Writes to the client share one gorilla connection, which allows a
	// single concurrent writer.
	writeMu sync.Mutex
}

func New(id string, client contractx.ClientConn) *ClientSession {
	return &ClientSession{
		id:          id,
		client:      client,
		transcripts: make(map[string]string),
		validItems:  make(map[string]struct{}),
	}
}

func (s *ClientSession) ID() string {
	return s.id
}

func (s *ClientSession) WriteJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.client.WriteJSON(v)
}

func (s *ClientSession) CloseClient() error {
	return s.client.Close()
}

func (s *ClientSession) BindUpstream(u contractx.Upstream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upstream = u
}

// Upstream returns the bound upstream handle; ok is false until the
// handshake completes.
func (s *ClientSession) Upstream() (contractx.Upstream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstream, s.upstream != nil
}

func (s *ClientSession) SetInfo(info map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
}

func (s *ClientSession) Info() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *ClientSession) AcceptingAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptAudio
}

func (s *ClientSession) SetAcceptingAudio(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acceptAudio = v
}

func (s *ClientSession) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// AdmitAudio decides whether an audio delta for itemID may be forwarded.
// An empty valid set means nothing is trusted yet: the first item id
// observed is admitted and opens the trust window. Item ids outside the
// window are rejected until the next reset. The amnesty is id-agnostic:
// an item id from before an interrupt is re-admitted if it happens to be
// the first one observed afterward. Intentional; do not tighten.
func (s *ClientSession) AdmitAudio(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.validItems) == 0 {
		s.validItems[itemID] = struct{}{}
	}
	if _, ok := s.validItems[itemID]; !ok {
		return false
	}
	s.lastAudioItemID = itemID
	return true
}

// TranscriptEligible reports whether transcript deltas for itemID are in
// the current trust window. Unlike AdmitAudio it never opens the window.
func (s *ClientSession) TranscriptEligible(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.validItems[itemID]
	return ok
}

// AppendTranscript accumulates a transcript delta and returns the
// cumulative text for the item.
func (s *ClientSession) AppendTranscript(itemID, delta string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[itemID] += delta
	return s.transcripts[itemID]
}

// ResetTrust empties the trust window. Called when a new response
// officially starts upstream; item ids are re-admitted lazily as their
// events arrive.
func (s *ClientSession) ResetTrust() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validItems = make(map[string]struct{})
}

// Interrupt marks a user-initiated interruption: the generation counter
// advances and the trust window empties, invalidating every in-flight
// item id. Returns the new generation.
func (s *ClientSession) Interrupt() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.validItems = make(map[string]struct{})
	return s.generation
}

// ClearAccumulators drops the transcript accumulator and the last
// forwarded audio item id.
func (s *ClientSession) ClearAccumulators() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = make(map[string]string)
	s.lastAudioItemID = ""
}

func (s *ClientSession) LastAudioItemID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAudioItemID
}
