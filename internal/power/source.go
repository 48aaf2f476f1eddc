package power

import "sync"

// ChannelSource is a Source fed by the embedding layer. The host shell calls
// SetDoze and SetPowerSave as the OS broadcasts transitions; every call
// publishes a fresh snapshot.
type ChannelSource struct {
	mu    sync.Mutex
	state State
	ch    chan State
}

// NewChannelSource creates a source with both flags clear.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{ch: make(chan State, 8)}
}

func (s *ChannelSource) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ChannelSource) Events() <-chan State {
	return s.ch
}

// SetDoze records a doze transition and publishes the new snapshot.
func (s *ChannelSource) SetDoze(active bool) {
	s.mu.Lock()
	s.state.Doze = active
	state := s.state
	s.mu.Unlock()
	s.publish(state)
}

// SetPowerSave records a power-save transition and publishes the new snapshot.
func (s *ChannelSource) SetPowerSave(active bool) {
	s.mu.Lock()
	s.state.PowerSave = active
	state := s.state
	s.mu.Unlock()
	s.publish(state)
}

// publish never blocks: when the monitor lags, the oldest queued snapshot is
// evicted so the newest state always lands.
func (s *ChannelSource) publish(state State) {
	for {
		select {
		case s.ch <- state:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
