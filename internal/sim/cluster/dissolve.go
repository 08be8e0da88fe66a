package cluster

import (
	"fmt"

	"pedsim.ai/internal/sim/agent"
	"pedsim.ai/internal/sim/rng"
)

// Registrar takes ownership of spawned agents.
type Registrar interface {
	AddAgent(a *agent.Agent)
}

// Dissolve spawns Count agents from the current configuration, registers each
// with reg once it is fully initialized, and returns them in spawn order.
//
// Position jitter draws from r only for axes with a nonzero distribution, X
// before Y, so a zero footprint consumes no randomness. The configuration is
// validated up front: on error no agent is created or registered.
func (c *AgentCluster) Dissolve(r rng.Source, reg Registrar) ([]*agent.Agent, error) {
	if len(c.agentIDs) != c.count {
		return nil, fmt.Errorf("cluster %d: %w: count %d, %d agent ids", c.id, ErrInvalidClusterConfig, c.count, len(c.agentIDs))
	}
	if r == nil {
		return nil, fmt.Errorf("cluster %d: nil random source", c.id)
	}
	if reg == nil {
		return nil, fmt.Errorf("cluster %d: nil registrar", c.id)
	}

	halfW := c.distribution.Width / 2
	halfH := c.distribution.Height / 2

	agents := make([]*agent.Agent, 0, c.count)
	for i := 0; i < c.count; i++ {
		a := agent.New(i, agent.DisplayName(c.agentIDs[i]))
		a.AgentID = c.agentIDs[i]

		x, y := c.position.X, c.position.Y
		if c.distribution.Width != 0 {
			x += r.Uniform(-halfW, halfW)
		}
		if c.distribution.Height != 0 {
			y += r.Uniform(-halfH, halfH)
		}
		a.SetPosition(x, y)
		a.SetInitialPosition(x, y)

		c.configure(a)

		for _, w := range c.waypoints {
			a.AddWaypoint(w)
		}

		reg.AddAgent(a)
		agents = append(agents, a)
	}
	return agents, nil
}

func (c *AgentCluster) configure(a *agent.Agent) {
	b := c.behavior

	a.SetType(c.agentType)
	a.SetVmax(c.vmax)
	a.VmaxDefault = c.vmax

	a.ChattingProbability = b.ChattingProbability
	a.TellStoryProbability = b.TellStoryProbability
	a.GroupTalkingProbability = b.GroupTalkingProbability
	a.TalkingAndWalkingProbability = b.TalkingAndWalkingProbability
	a.MaxTalkingDistance = b.MaxTalkingDistance

	a.StateMachine.TalkingBaseTime = b.StateTalkingBaseTime
	a.StateMachine.TellStoryBaseTime = b.StateTellStoryBaseTime
	a.StateMachine.GroupTalkingBaseTime = b.StateGroupTalkingBaseTime
	a.StateMachine.TalkingAndWalkingBaseTime = b.StateTalkingAndWalkingBaseTime

	a.WaypointMode = c.waypointMode
	a.SetForceFactorDesired(b.ForceFactorDesired)
	a.SetForceFactorSocial(b.ForceFactorSocial)
	a.SetForceFactorObstacle(b.ForceFactorObstacle)
}
