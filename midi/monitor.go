package midi

import "time"

// loop is an owned periodic task handle, cancelled deterministically
// so repeated enable/disable cycles never leak timers.
type loop struct {
	stop chan struct{}
}

func (s *Service) startMonitorLocked() {
	if s.monitorLoop != nil {
		return // already running
	}
	l := &loop{stop: make(chan struct{})}
	s.monitorLoop = l
	go s.runLoop(l, s.monitorEvery, s.monitorTick)
}

func (s *Service) stopMonitorLocked() {
	if s.monitorLoop == nil {
		return
	}
	close(s.monitorLoop.stop)
	s.monitorLoop = nil
}

func (s *Service) startReconnectLocked() {
	if s.reconnectLoop != nil {
		return
	}
	s.log.Info("midi: reconnection started")
	l := &loop{stop: make(chan struct{})}
	s.reconnectLoop = l
	go s.runLoop(l, s.reconnectEvery, s.reconnectTick)
}

func (s *Service) stopReconnectLocked() {
	if s.reconnectLoop == nil {
		return
	}
	close(s.reconnectLoop.stop)
	s.reconnectLoop = nil
}

func (s *Service) runLoop(l *loop, every time.Duration, tick func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			tick()
		}
	}
}

// syncReconnectLocked enforces the invariant that the reconnection
// process is active iff at least one desired slot is unconnected.
func (s *Service) syncReconnectLocked() {
	want := s.enabled &&
		((s.in.wanted() && s.inConn == nil) || (s.out.wanted() && s.outConn == nil))
	s.reconnecting = want
	if want {
		s.startReconnectLocked()
	} else {
		s.stopReconnectLocked()
	}
}

// monitorTick re-queries the directory and soft-disconnects any slot
// whose device no longer appears by name. Detection is split from
// repair so a flaky absence hands off to the reconnection loop
// immediately instead of waiting a detection interval plus a retry
// interval.
func (s *Service) monitorTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv == nil || !s.enabled {
		return
	}

	lost := false
	if s.inConn != nil && indexOf(s.listLocked(true), s.in.connectedName) < 0 {
		s.log.Warn("midi: input device disappeared", "device", s.in.connectedName)
		s.closeInputLocked()
		lost = true
	}
	if s.outConn != nil && indexOf(s.listLocked(false), s.out.connectedName) < 0 {
		s.log.Warn("midi: output device disappeared", "device", s.out.connectedName)
		s.closeOutputLocked()
		lost = true
	}
	if lost {
		s.syncReconnectLocked()
		s.notifyStatusLocked()
	}
}

// reconnectTick retries every unconnected desired slot, in order: by
// remembered name, by remembered ordinal, then (opt-in) the first
// available device of that direction. When every desired slot is
// restored it emits exactly one settlement: dependents resynchronize
// there, not on every intermediate attempt.
func (s *Service) reconnectTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv == nil || !s.enabled || !s.reconnecting {
		return
	}

	if s.in.wanted() && s.inConn == nil {
		s.tryRestoreInputLocked()
	}
	if s.out.wanted() && s.outConn == nil {
		s.tryRestoreOutputLocked()
	}

	if !s.reconnecting {
		// The last connect flipped the invariant off.
		s.log.Info("midi: reconnection complete",
			"input", s.in.connectedName,
			"output", s.out.connectedName,
		)
		if s.devicesFn != nil {
			s.devicesFn(s.devicesLocked())
		}
	}
}

func (s *Service) tryRestoreInputLocked() {
	names := s.listLocked(true)
	if len(names) == 0 {
		return
	}
	if s.in.desiredName != "" && indexOf(names, s.in.desiredName) >= 0 {
		s.connectInputLocked(s.in.desiredName, -1, false)
		return
	}
	if o := s.in.requestedOrdinal; o >= 0 && o < len(names) {
		s.connectInputLocked("", o, false)
		return
	}
	if s.allowFallback {
		s.log.Info("midi: falling back to first available input", "device", names[0])
		s.connectInputLocked(names[0], -1, false)
	}
}

func (s *Service) tryRestoreOutputLocked() {
	names := s.listLocked(false)
	if len(names) == 0 {
		return
	}
	if s.out.desiredName != "" && indexOf(names, s.out.desiredName) >= 0 {
		s.connectOutputLocked(s.out.desiredName, -1, false)
		return
	}
	if o := s.out.requestedOrdinal; o >= 0 && o < len(names) {
		s.connectOutputLocked("", o, false)
		return
	}
	if s.allowFallback {
		s.log.Info("midi: falling back to first available output", "device", names[0])
		s.connectOutputLocked(names[0], -1, false)
	}
}
