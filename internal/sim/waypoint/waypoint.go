package waypoint

import (
	"fmt"
	"strings"

	"pedsim.ai/internal/sim/geom"
)

type Kind string

const (
	KindWaypoint     Kind = "WAYPOINT"
	KindWaitingQueue Kind = "WAITING_QUEUE"
)

// Navigable is the capability an agent route is built from. Waypoints and
// waiting queues both provide it; neither clusters nor agents own them.
type Navigable interface {
	WaypointID() string
	Position() geom.Vec2
	Kind() Kind
}

type Waypoint struct {
	ID     string
	Pos    geom.Vec2
	Radius float64
}

func NewWaypoint(id string, x, y, r float64) *Waypoint {
	return &Waypoint{ID: id, Pos: geom.V(x, y), Radius: r}
}

func (w *Waypoint) WaypointID() string  { return w.ID }
func (w *Waypoint) Position() geom.Vec2 { return w.Pos }
func (w *Waypoint) Kind() Kind          { return KindWaypoint }

func (w *Waypoint) String() string {
	return fmt.Sprintf("Waypoint %s (@%g,%g)", w.ID, w.Pos.X, w.Pos.Y)
}

// WaitingQueue is a waypoint where agents line up before proceeding.
// Direction is the heading of the queue tail in radians.
type WaitingQueue struct {
	ID        string
	Pos       geom.Vec2
	Direction float64
	WaitMean  float64
}

func NewWaitingQueue(id string, x, y, direction, waitMean float64) *WaitingQueue {
	return &WaitingQueue{ID: id, Pos: geom.V(x, y), Direction: direction, WaitMean: waitMean}
}

func (q *WaitingQueue) WaypointID() string  { return q.ID }
func (q *WaitingQueue) Position() geom.Vec2 { return q.Pos }
func (q *WaitingQueue) Kind() Kind          { return KindWaitingQueue }

func (q *WaitingQueue) String() string {
	return fmt.Sprintf("WaitingQueue %s (@%g,%g)", q.ID, q.Pos.X, q.Pos.Y)
}

// IDs returns the ids of ws in order.
func IDs(ws []Navigable) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.WaypointID())
	}
	return out
}

// Registry owns waypoints and waiting queues for a scenario.
type Registry struct {
	byID  map[string]Navigable
	order []string
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]Navigable{}}
}

func (r *Registry) AddWaypoint(w *Waypoint) error {
	if w == nil {
		return fmt.Errorf("nil waypoint")
	}
	return r.add(w)
}

func (r *Registry) AddWaitingQueue(q *WaitingQueue) error {
	if q == nil {
		return fmt.Errorf("nil waiting queue")
	}
	return r.add(q)
}

func (r *Registry) add(n Navigable) error {
	id := strings.TrimSpace(n.WaypointID())
	if id == "" {
		return fmt.Errorf("waypoint id must not be empty")
	}
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("duplicate waypoint id: %s", id)
	}
	r.byID[id] = n
	r.order = append(r.order, id)
	return nil
}

func (r *Registry) Lookup(id string) (Navigable, bool) {
	n, ok := r.byID[id]
	return n, ok
}

func (r *Registry) Remove(id string) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns every entry in insertion order.
func (r *Registry) All() []Navigable {
	out := make([]Navigable, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }
