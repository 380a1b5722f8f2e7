package session

import (
	"testing"
)

type nullClient struct{}

func (nullClient) WriteJSON(any) error { return nil }
func (nullClient) Close() error        { return nil }

func TestAdmitAudioFirstItemOpensWindow(t *testing.T) {
	t.Parallel()

	s := New("c1", nullClient{})
	if !s.AdmitAudio("item-1") {
		t.Fatal("first item after reset must be admitted")
	}
	if !s.AdmitAudio("item-1") {
		t.Fatal("admitted item must stay admitted")
	}
	if s.AdmitAudio("item-2") {
		t.Fatal("second item id must be rejected while window holds item-1")
	}
	if s.LastAudioItemID() != "item-1" {
		t.Fatalf("unexpected last audio item: %q", s.LastAudioItemID())
	}
}

func TestAdmitAudioAfterReset(t *testing.T) {
	t.Parallel()

	s := New("c1", nullClient{})
	if !s.AdmitAudio("old") {
		t.Fatal("expected old item admitted")
	}
	s.ResetTrust()
	if !s.AdmitAudio("new") {
		t.Fatal("first item after reset must be admitted")
	}
	if s.AdmitAudio("old") {
		t.Fatal("pre-reset item must be rejected after the window reopens")
	}
}

func TestTranscriptEligibleNeverOpensWindow(t *testing.T) {
	t.Parallel()

	s := New("c1", nullClient{})
	if s.TranscriptEligible("item-1") {
		t.Fatal("transcript must not be eligible before any audio is admitted")
	}
	if !s.AdmitAudio("item-1") {
		t.Fatal("expected item-1 admitted")
	}
	if !s.TranscriptEligible("item-1") {
		t.Fatal("transcript for admitted item must be eligible")
	}
	if s.TranscriptEligible("item-2") {
		t.Fatal("transcript outside the window must be ineligible")
	}
}

func TestAppendTranscriptAccumulates(t *testing.T) {
	t.Parallel()

	s := New("c1", nullClient{})
	if got := s.AppendTranscript("item-1", "Hel"); got != "Hel" {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if got := s.AppendTranscript("item-1", "lo"); got != "Hello" {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if got := s.AppendTranscript("item-2", "Hi"); got != "Hi" {
		t.Fatalf("items must accumulate independently, got %q", got)
	}

	s.ClearAccumulators()
	if got := s.AppendTranscript("item-1", "x"); got != "x" {
		t.Fatalf("transcript must restart after clear, got %q", got)
	}
}

func TestInterruptAdvancesGenerationAndEmptiesWindow(t *testing.T) {
	t.Parallel()

	s := New("c1", nullClient{})
	if !s.AdmitAudio("item-1") {
		t.Fatal("expected item-1 admitted")
	}

	gen := s.Interrupt()
	if gen != 1 {
		t.Fatalf("unexpected generation: %d", gen)
	}
	if s.Generation() != 1 {
		t.Fatalf("unexpected generation: %d", s.Generation())
	}
	if s.TranscriptEligible("item-1") {
		t.Fatal("interrupt must invalidate in-flight items")
	}
	if !s.AdmitAudio("item-2") {
		t.Fatal("first item after interrupt must be admitted")
	}

	if s.Interrupt() != 2 {
		t.Fatal("generation must advance on every interrupt")
	}
}

func TestInterruptAmnestyIsIDAgnostic(t *testing.T) {
	t.Parallel()

	// The first item id observed after an interrupt is admitted even if
	// it was already seen before the interrupt.
	s := New("c1", nullClient{})
	if !s.AdmitAudio("item-1") {
		t.Fatal("expected item-1 admitted")
	}
	s.Interrupt()
	if !s.AdmitAudio("item-1") {
		t.Fatal("pre-interrupt id must be re-admitted when it is first after the reset")
	}
	if s.AdmitAudio("item-2") {
		t.Fatal("window must hold only the amnesty item")
	}
}

func TestInterleavedResponses(t *testing.T) {
	t.Parallel()

	// A superseded response's audio keeps arriving after the new
	// response has started; only the new response's item survives.
	s := New("c1", nullClient{})
	if !s.AdmitAudio("resp-1") {
		t.Fatal("expected resp-1 admitted")
	}
	s.ResetTrust()
	if !s.AdmitAudio("resp-2") {
		t.Fatal("expected resp-2 admitted")
	}
	if s.AdmitAudio("resp-1") {
		t.Fatal("stale resp-1 audio must be dropped")
	}
	if s.TranscriptEligible("resp-1") {
		t.Fatal("stale resp-1 transcript must be dropped")
	}
	if !s.TranscriptEligible("resp-2") {
		t.Fatal("live resp-2 transcript must pass")
	}
}

func TestAcceptingAudioDefaultsOff(t *testing.T) {
	t.Parallel()

	s := New("c1", nullClient{})
	if s.AcceptingAudio() {
		t.Fatal("sessions must start with audio intake off")
	}
	s.SetAcceptingAudio(true)
	if !s.AcceptingAudio() {
		t.Fatal("expected audio intake on")
	}
}
