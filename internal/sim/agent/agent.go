package agent

import (
	"fmt"

	"pedsim.ai/internal/sim/geom"
	"pedsim.ai/internal/sim/waypoint"
)

// StateMachine holds the timing parameters of the social state machine
// (talking, story telling, group talking, talking while walking). The
// transitions themselves run in the simulation runtime.
type StateMachine struct {
	TalkingBaseTime           float64
	TellStoryBaseTime         float64
	GroupTalkingBaseTime      float64
	TalkingAndWalkingBaseTime float64
}

// Agent is a single simulated pedestrian. Clusters populate it through the
// setters below and hand it to the scene; it holds no reference back to the
// cluster that produced it.
type Agent struct {
	Index   int
	Name    string
	AgentID int

	VmaxDefault float64

	ChattingProbability          float64
	TellStoryProbability         float64
	GroupTalkingProbability      float64
	TalkingAndWalkingProbability float64
	MaxTalkingDistance           float64

	WaypointMode WaypointMode
	StateMachine *StateMachine

	pos        geom.Vec2
	initialPos geom.Vec2
	hasInitial bool

	typ  Type
	vmax float64

	forceFactorDesired  float64
	forceFactorSocial   float64
	forceFactorObstacle float64

	waypoints []waypoint.Navigable
}

func New(index int, name string) *Agent {
	return &Agent{
		Index:        index,
		Name:         name,
		StateMachine: &StateMachine{},
	}
}

// DisplayName is the name given to the agent with cluster id agentID.
func DisplayName(agentID int) string {
	return fmt.Sprintf("person_%d", agentID)
}

func (a *Agent) Position() geom.Vec2 { return a.pos }

func (a *Agent) SetPosition(x, y float64) { a.pos = geom.V(x, y) }

// InitialPosition is the spawn position, kept for displacement analysis.
func (a *Agent) InitialPosition() geom.Vec2 { return a.initialPos }

// SetInitialPosition records the spawn position. Only the first call has an
// effect; it reports whether the value was stored.
func (a *Agent) SetInitialPosition(x, y float64) bool {
	if a.hasInitial {
		return false
	}
	a.initialPos = geom.V(x, y)
	a.hasInitial = true
	return true
}

func (a *Agent) Type() Type        { return a.typ }
func (a *Agent) SetType(t Type)    { a.typ = t }
func (a *Agent) Vmax() float64     { return a.vmax }
func (a *Agent) SetVmax(v float64) { a.vmax = v }

func (a *Agent) ForceFactorDesired() float64      { return a.forceFactorDesired }
func (a *Agent) SetForceFactorDesired(f float64)  { a.forceFactorDesired = f }
func (a *Agent) ForceFactorSocial() float64       { return a.forceFactorSocial }
func (a *Agent) SetForceFactorSocial(f float64)   { a.forceFactorSocial = f }
func (a *Agent) ForceFactorObstacle() float64     { return a.forceFactorObstacle }
func (a *Agent) SetForceFactorObstacle(f float64) { a.forceFactorObstacle = f }

func (a *Agent) AddWaypoint(w waypoint.Navigable) {
	a.waypoints = append(a.waypoints, w)
}

// Waypoints returns the agent's route. The slice is a copy; the entries are
// shared references.
func (a *Agent) Waypoints() []waypoint.Navigable {
	return append([]waypoint.Navigable(nil), a.waypoints...)
}

// Displacement is the distance from the spawn position to the current one.
func (a *Agent) Displacement() float64 {
	return a.pos.Sub(a.initialPos).Len()
}

func (a *Agent) String() string {
	return fmt.Sprintf("Agent %d %s (@%g,%g)", a.Index, a.Name, a.pos.X, a.pos.Y)
}
