package scene

import (
	"sync"

	"pedsim.ai/internal/sim/agent"
)

type EventKind string

const (
	AgentAdded EventKind = "AGENT_ADDED"
	Cleared    EventKind = "CLEARED"
)

type Event struct {
	Kind  EventKind
	Agent *agent.Agent
	Count int
}

// Scene owns the live agent list. Clusters register agents through AddAgent.
type Scene struct {
	mu     sync.Mutex
	agents []*agent.Agent
	byName map[string]*agent.Agent

	subs   map[int]func(Event)
	subSeq int
}

func New() *Scene {
	return &Scene{
		byName: map[string]*agent.Agent{},
		subs:   map[int]func(Event){},
	}
}

func (s *Scene) AddAgent(a *agent.Agent) {
	if a == nil {
		return
	}
	s.mu.Lock()
	s.agents = append(s.agents, a)
	s.byName[a.Name] = a
	n := len(s.agents)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Kind: AgentAdded, Agent: a, Count: n})
	}
}

func (s *Scene) Agents() []*agent.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*agent.Agent(nil), s.agents...)
}

func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents)
}

func (s *Scene) AgentByName(name string) (*agent.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byName[name]
	return a, ok
}

// Clear drops every agent.
func (s *Scene) Clear() {
	s.mu.Lock()
	s.agents = nil
	s.byName = map[string]*agent.Agent{}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Kind: Cleared})
	}
}

// Subscribe registers fn for scene events. Events are delivered on the
// goroutine that mutated the scene, in subscription order.
func (s *Scene) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Scene) subscribersLocked() []func(Event) {
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]func(Event), 0, len(s.subs))
	for i := 1; i <= s.subSeq; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
