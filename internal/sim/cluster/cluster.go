// Package cluster implements agent clusters: templates describing a group of
// pedestrians that share placement, behavior and route, and that are expanded
// into concrete agents by Dissolve.
package cluster

import (
	"errors"
	"fmt"
	"reflect"

	"pedsim.ai/internal/sim/agent"
	"pedsim.ai/internal/sim/geom"
	"pedsim.ai/internal/sim/ids"
	"pedsim.ai/internal/sim/rng"
	"pedsim.ai/internal/sim/tuning"
	"pedsim.ai/internal/sim/waypoint"
)

var (
	// ErrInvalidClusterConfig means the agent id list does not match the count.
	ErrInvalidClusterConfig = errors.New("invalid cluster configuration")
	// ErrNilWaypoint rejects nil waypoints and waiting queues.
	ErrNilWaypoint          = errors.New("nil waypoint")
	ErrNegativeDistribution = errors.New("distribution must be >= 0")
	ErrNegativeCount        = errors.New("count must be >= 0")
)

// Options carries the collaborators New needs.
type Options struct {
	// Alloc supplies ids when the caller's id list does not match the count.
	Alloc *ids.Allocator
	// Rand is used once at construction to draw vmax.
	Rand rng.Source
	// Defaults overrides tuning.Defaults() when set.
	Defaults *tuning.ClusterDefaults
}

// Behavior is the set of per-agent parameters copied by value onto every
// spawned agent.
type Behavior struct {
	ForceFactorDesired  float64
	ForceFactorSocial   float64
	ForceFactorObstacle float64

	ChattingProbability          float64
	TellStoryProbability         float64
	GroupTalkingProbability      float64
	TalkingAndWalkingProbability float64
	MaxTalkingDistance           float64

	StateTalkingBaseTime           float64
	StateTellStoryBaseTime         float64
	StateGroupTalkingBaseTime      float64
	StateTalkingAndWalkingBaseTime float64
}

// AgentCluster is a spawn template. It is not safe for concurrent use;
// mutation and Dissolve belong to one goroutine.
type AgentCluster struct {
	id       int
	position geom.Vec2
	count    int
	agentIDs []int

	distribution geom.Size
	agentType    agent.Type
	vmax         float64
	behavior     Behavior
	waypointMode agent.WaypointMode

	// Stored for scenario round trips; grouping is not implemented.
	shallCreateGroups bool

	waypoints []waypoint.Navigable

	subs   map[int]func(Event)
	subSeq int
}

// New creates a cluster at (x, y) that spawns count agents. agentIDs is used
// as given when its length equals count; otherwise it is ignored and count
// fresh ids are reserved from opts.Alloc.
func New(id int, x, y float64, count int, agentIDs []int, opts Options) (*AgentCluster, error) {
	if count < 0 {
		return nil, fmt.Errorf("cluster %d: %w", id, ErrNegativeCount)
	}
	if opts.Rand == nil {
		return nil, fmt.Errorf("cluster %d: nil random source", id)
	}
	d := tuning.Defaults()
	if opts.Defaults != nil {
		d = *opts.Defaults
	}

	var idList []int
	if len(agentIDs) == count {
		idList = append([]int(nil), agentIDs...)
		if opts.Alloc != nil {
			opts.Alloc.Claim(idList...)
		}
	} else {
		if opts.Alloc == nil {
			return nil, fmt.Errorf("cluster %d: %d agent ids for count %d and no allocator", id, len(agentIDs), count)
		}
		idList = opts.Alloc.Reserve(count)
	}

	c := &AgentCluster{
		id:                id,
		position:          geom.V(x, y),
		count:             count,
		agentIDs:          idList,
		agentType:         d.AgentType,
		waypointMode:      d.WaypointMode,
		shallCreateGroups: d.ShallCreateGroups,
		behavior: Behavior{
			ForceFactorDesired:  d.ForceFactorDesired,
			ForceFactorSocial:   d.ForceFactorSocial,
			ForceFactorObstacle: d.ForceFactorObstacle,

			ChattingProbability:          d.ChattingProbability,
			TellStoryProbability:         d.TellStoryProbability,
			GroupTalkingProbability:      d.GroupTalkingProbability,
			TalkingAndWalkingProbability: d.TalkingAndWalkingProbability,
			MaxTalkingDistance:           d.MaxTalkingDistance,

			StateTalkingBaseTime:           d.BaseTimes.Talking,
			StateTellStoryBaseTime:         d.BaseTimes.TellStory,
			StateGroupTalkingBaseTime:      d.BaseTimes.GroupTalking,
			StateTalkingAndWalkingBaseTime: d.BaseTimes.TalkingAndWalking,
		},
		subs: map[int]func(Event){},
	}
	c.vmax = opts.Rand.Normal(d.VmaxMean, d.VmaxStddev)
	return c, nil
}

// ID is the cluster's scene identity.
func (c *AgentCluster) ID() int { return c.id }

// Count is the number of agents each Dissolve produces.
func (c *AgentCluster) Count() int { return c.count }

// SetCount changes how many agents Dissolve produces. The id list is not
// resized; use SetAgentIDs before dissolving.
func (c *AgentCluster) SetCount(n int) error {
	if n < 0 {
		return ErrNegativeCount
	}
	c.count = n
	return nil
}

// AgentIDs returns a copy of the ids assigned to spawned agents, in order.
func (c *AgentCluster) AgentIDs() []int { return append([]int(nil), c.agentIDs...) }

// SetAgentIDs replaces the id list. Dissolve fails until its length matches
// Count.
func (c *AgentCluster) SetAgentIDs(idList []int) {
	c.agentIDs = append([]int(nil), idList...)
}

func (c *AgentCluster) Position() geom.Vec2 { return c.position }

// SetPositionVec moves the cluster and notifies observers.
func (c *AgentCluster) SetPositionVec(p geom.Vec2) {
	c.position = p
	c.emit(Event{Kind: PositionChanged, X: p.X, Y: p.Y})
}

func (c *AgentCluster) SetPosition(x, y float64) { c.SetPositionVec(geom.V(x, y)) }

func (c *AgentCluster) SetX(x float64) {
	c.position.X = x
	c.emit(Event{Kind: PositionChanged, X: c.position.X, Y: c.position.Y})
}

func (c *AgentCluster) SetY(y float64) {
	c.position.Y = y
	c.emit(Event{Kind: PositionChanged, X: c.position.X, Y: c.position.Y})
}

// VisiblePosition and SetVisiblePosition are the editor-facing aliases of
// Position and SetPositionVec.
func (c *AgentCluster) VisiblePosition() geom.Vec2     { return c.position }
func (c *AgentCluster) SetVisiblePosition(p geom.Vec2) { c.SetPosition(p.X, p.Y) }

func (c *AgentCluster) Type() agent.Type { return c.agentType }

// SetType changes the type given to spawned agents and notifies observers.
func (c *AgentCluster) SetType(t agent.Type) {
	c.agentType = t
	c.emit(Event{Kind: TypeChanged, Type: t})
}

func (c *AgentCluster) Distribution() geom.Size { return c.distribution }

// Distribution setters do not notify observers.

func (c *AgentCluster) SetDistribution(w, h float64) error {
	if w < 0 || h < 0 {
		return ErrNegativeDistribution
	}
	c.distribution = geom.Size{Width: w, Height: h}
	return nil
}

func (c *AgentCluster) SetDistributionWidth(w float64) error {
	if w < 0 {
		return ErrNegativeDistribution
	}
	c.distribution.Width = w
	return nil
}

func (c *AgentCluster) SetDistributionHeight(h float64) error {
	if h < 0 {
		return ErrNegativeDistribution
	}
	c.distribution.Height = h
	return nil
}

// Vmax is drawn once in New and shared by every spawned agent.
func (c *AgentCluster) Vmax() float64     { return c.vmax }
func (c *AgentCluster) SetVmax(v float64) { c.vmax = v }

func (c *AgentCluster) Behavior() Behavior     { return c.behavior }
func (c *AgentCluster) SetBehavior(b Behavior) { c.behavior = b }

func (c *AgentCluster) ForceFactorDesired() float64      { return c.behavior.ForceFactorDesired }
func (c *AgentCluster) SetForceFactorDesired(f float64)  { c.behavior.ForceFactorDesired = f }
func (c *AgentCluster) ForceFactorSocial() float64       { return c.behavior.ForceFactorSocial }
func (c *AgentCluster) SetForceFactorSocial(f float64)   { c.behavior.ForceFactorSocial = f }
func (c *AgentCluster) ForceFactorObstacle() float64     { return c.behavior.ForceFactorObstacle }
func (c *AgentCluster) SetForceFactorObstacle(f float64) { c.behavior.ForceFactorObstacle = f }

func (c *AgentCluster) WaypointMode() agent.WaypointMode     { return c.waypointMode }
func (c *AgentCluster) SetWaypointMode(m agent.WaypointMode) { c.waypointMode = m }

func (c *AgentCluster) ShallCreateGroups() bool     { return c.shallCreateGroups }
func (c *AgentCluster) SetShallCreateGroups(b bool) { c.shallCreateGroups = b }

// Waypoints returns the route in order. The slice is a copy; the elements
// are shared references.
func (c *AgentCluster) Waypoints() []waypoint.Navigable {
	return append([]waypoint.Navigable(nil), c.waypoints...)
}

// AddWaypoint appends w to the route. Duplicates are allowed.
func (c *AgentCluster) AddWaypoint(w waypoint.Navigable) error {
	if isNilNavigable(w) {
		return ErrNilWaypoint
	}
	c.waypoints = append(c.waypoints, w)
	return nil
}

// RemoveWaypoint removes every occurrence of w and reports whether any was
// found. Occurrences are matched by reference.
func (c *AgentCluster) RemoveWaypoint(w waypoint.Navigable) bool {
	if isNilNavigable(w) {
		return false
	}
	kept := c.waypoints[:0]
	removed := 0
	for _, x := range c.waypoints {
		if sameNavigable(x, w) {
			removed++
			continue
		}
		kept = append(kept, x)
	}
	for i := len(kept); i < len(c.waypoints); i++ {
		c.waypoints[i] = nil
	}
	c.waypoints = kept
	return removed > 0
}

func (c *AgentCluster) AddWaitingQueue(q *waypoint.WaitingQueue) error {
	if q == nil {
		return ErrNilWaypoint
	}
	return c.AddWaypoint(q)
}

func (c *AgentCluster) RemoveWaitingQueue(q *waypoint.WaitingQueue) bool {
	if q == nil {
		return false
	}
	return c.RemoveWaypoint(q)
}

func (c *AgentCluster) String() string {
	return fmt.Sprintf("AgentCluster (@%g,%g)", c.position.X, c.position.Y)
}

// sameNavigable reports reference equality. Values of non-comparable dynamic
// types never match, since == on them would panic.
func sameNavigable(a, b waypoint.Navigable) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func isNilNavigable(w waypoint.Navigable) bool {
	switch v := w.(type) {
	case nil:
		return true
	case *waypoint.Waypoint:
		return v == nil
	case *waypoint.WaitingQueue:
		return v == nil
	}
	return false
}
