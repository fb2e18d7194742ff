package midi

import "time"

const (
	defaultLEDBatchSize  = 8
	defaultLEDBatchPause = 15 * time.Millisecond

	ledChannel    = 0
	ledOnVelocity = 127

	ledResetFirst = 0
	ledResetLast  = 127
)

// SetLED writes one button LED state. A missing output handle makes
// this a silent no-op returning false: absence of feedback hardware is
// a valid steady state, not an error.
func (s *Service) SetLED(note uint8, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outConn == nil {
		return false
	}
	var err error
	if on {
		err = s.outConn.NoteOn(ledChannel, note, ledOnVelocity)
	} else {
		err = s.outConn.NoteOff(ledChannel, note)
	}
	if err != nil {
		s.log.Warn("midi: led write failed", "note", note, "on", on, "err", err)
		return false
	}
	return true
}

// ResetLEDs turns off every LED in [first, last]. Writes are issued in
// fixed-size batches with a short pacing delay between batches: small
// controllers have finite receive buffers, and a fast host can overrun
// them and silently drop trailing messages, leaving LED state that
// differs between build configurations. A failing individual write
// never aborts the remaining batch.
func (s *Service) ResetLEDs(first, last uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLEDsLocked(s.outConn, first, last)
}

func (s *Service) resetLEDsLocked(out Output, first, last uint8) {
	if out == nil {
		return
	}
	inBatch := 0
	for n := int(first); n <= int(last); n++ {
		if err := out.NoteOff(ledChannel, uint8(n)); err != nil {
			s.log.Warn("midi: led reset write failed", "note", n, "err", err)
		}
		inBatch++
		if inBatch == s.ledBatchSize && n < int(last) {
			inBatch = 0
			s.pause(s.ledBatchPause)
		}
	}
}
