package narrative

import "sync"

// State carries speaker continuity across narrative calls. One State is
// created per story session and shared by every call in it. The zero value
// is ready to use.
type State struct {
	// call serializes whole Segment calls so quotes are resolved strictly
	// left to right across the session.
	call sync.Mutex

	mu          sync.Mutex
	lastSpeaker string
	lastGender  Gender
}

// NewState returns an empty session state.
func NewState() *State {
	return &State{}
}

// Snapshot is a point-in-time copy of a State.
type Snapshot struct {
	LastSpeaker string `json:"last_speaker"`
	LastGender  Gender `json:"last_gender"`
}

// Snapshot returns the current last speaker and gender.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{LastSpeaker: s.lastSpeaker, LastGender: s.lastGender}
}

// LastSpeaker returns the most recent non-player speaker, if any.
func (s *State) LastSpeaker() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSpeaker, s.lastSpeaker != ""
}

// Clone returns an independent copy, used for dry runs that must not
// disturb the live session.
func (s *State) Clone() *State {
	snap := s.Snapshot()
	return &State{lastSpeaker: snap.LastSpeaker, lastGender: snap.LastGender}
}

// Reset forgets the last speaker. Callers use it when a story session ends.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSpeaker = ""
	s.lastGender = GenderNone
}

// record stores a resolved attribution. Player lines never replace the
// last speaker.
func (s *State) record(a Attribution) {
	if a.Speaker == SpeakerPlayer {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSpeaker = a.Speaker
	s.lastGender = a.Gender
}
