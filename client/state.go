package client

import "github.com/g15tools/g15keys/profile"

// State is the live client state: the loaded configuration, the active
// profile selection and the last key-state snapshot. It is owned by the
// event loop and mutated only on its goroutine.
type State struct {
	Conf   *profile.Config
	Active string
	Keys   uint32
}

func NewState(conf *profile.Config) *State {
	return &State{Conf: conf, Active: conf.First()}
}

// Replace swaps in a freshly loaded configuration atomically, keeping the
// active profile when it still exists and falling back to the first profile
// otherwise.
func (s *State) Replace(conf *profile.Config) {
	s.Conf = conf
	if !conf.Has(s.Active) {
		s.Active = conf.First()
	}
}

// Profile returns the active profile's bindings, creating the entry if the
// configuration maps the active name to nothing.
func (s *State) Profile() profile.Profile {
	p, ok := s.Conf.Get(s.Active)
	if !ok || p == nil {
		p = profile.Profile{}
		s.Conf.Set(s.Active, p)
	}
	return p
}
