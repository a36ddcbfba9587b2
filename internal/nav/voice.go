package nav

import (
	"context"
	"fmt"
	"log"
	"sync"

	"backend-kwenda/internal/speech"
)

// voiceQueue plays at most one instruction at a time. Each queued entry
// carries a freshness check; an instruction whose trigger distance has
// been passed by the time synthesis completes is dropped rather than
// announced late. Synthesis failures are reported and never interrupt
// navigation.
type voiceQueue struct {
	synth speech.Synthesizer
	voice string

	mu      sync.Mutex
	muted   bool
	busy    bool
	pending []queuedInstruction
	closed  bool

	// play hands synthesized audio to the playback layer. Replaceable in
	// tests; defaults to a no-op sink.
	play    func(audio []byte)
	onError func(error)
}

type queuedInstruction struct {
	instruction VoiceInstruction
	stillFresh  func() bool
}

func newVoiceQueue(synth speech.Synthesizer, voice string, onError func(error)) *voiceQueue {
	return &voiceQueue{
		synth:   synth,
		voice:   voice,
		play:    func([]byte) {},
		onError: onError,
	}
}

func (q *voiceQueue) enqueue(in VoiceInstruction, stillFresh func() bool) {
	q.mu.Lock()
	if q.closed || q.muted || q.synth == nil {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, queuedInstruction{instruction: in, stillFresh: stillFresh})
	if q.busy {
		q.mu.Unlock()
		return
	}
	q.busy = true
	q.mu.Unlock()

	go q.drain()
}

func (q *voiceQueue) drain() {
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.busy = false
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		audio, err := q.synth.Synthesize(context.Background(), SpokenText(next.instruction), q.voice)
		if err != nil {
			log.Printf("voice synthesis: %v", err)
			if q.onError != nil {
				q.onError(err)
			}
			continue
		}
		// Stale-instruction invariant: never announce a turn that was
		// already passed while synthesis was in flight.
		if next.stillFresh != nil && !next.stillFresh() {
			continue
		}
		q.mu.Lock()
		muted := q.muted || q.closed
		q.mu.Unlock()
		if !muted {
			q.play(audio)
		}
	}
}

func (q *voiceQueue) setMuted(muted bool) {
	q.mu.Lock()
	q.muted = muted
	if muted {
		q.pending = nil
	}
	q.mu.Unlock()
}

func (q *voiceQueue) isMuted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.muted
}

func (q *voiceQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.pending = nil
	q.mu.Unlock()
}

// SpokenText renders one instruction the way it is announced.
func SpokenText(in VoiceInstruction) string {
	var action string
	switch in.Maneuver {
	case ManeuverDepart:
		action = "Head out"
	case ManeuverTurnLeft:
		action = "turn left"
	case ManeuverTurnRight:
		action = "turn right"
	case ManeuverUTurn:
		action = "make a U-turn"
	case ManeuverArrive:
		return "You have arrived at your destination"
	default:
		action = "continue straight"
	}

	if in.Maneuver == ManeuverDepart {
		if in.Street != "" {
			return fmt.Sprintf("%s on %s", action, in.Street)
		}
		return action
	}

	suffix := ""
	if in.Street != "" {
		suffix = " onto " + in.Street
	}
	if in.DistanceM >= 50 {
		return fmt.Sprintf("In %d meters, %s%s", int(in.DistanceM/10)*10, action, suffix)
	}
	return fmt.Sprintf("Now %s%s", action, suffix)
}
