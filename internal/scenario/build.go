package scenario

import (
	"fmt"

	"pedsim.ai/internal/sim/agent"
	"pedsim.ai/internal/sim/cluster"
	"pedsim.ai/internal/sim/ids"
	"pedsim.ai/internal/sim/rng"
	"pedsim.ai/internal/sim/tuning"
	"pedsim.ai/internal/sim/waypoint"
)

type Env struct {
	Alloc    *ids.Allocator
	Rand     rng.Source
	Defaults *tuning.ClusterDefaults
}

type Built struct {
	Name     string
	Seed     int64
	Registry *waypoint.Registry
	Clusters []*cluster.AgentCluster
}

// Build creates the waypoint registry and the clusters of sc in file order.
// Explicit agent ids of every cluster are claimed before any cluster reserves
// fresh ids, so synthesized ids never collide with listed ones.
func Build(sc Scenario, env Env) (*Built, error) {
	if env.Alloc == nil {
		env.Alloc = ids.NewAllocator(sc.FirstAgentID)
	}
	if env.Rand == nil {
		return nil, fmt.Errorf("scenario %s: nil random source", sc.Name)
	}

	reg := waypoint.NewRegistry()
	for _, w := range sc.Waypoints {
		if err := reg.AddWaypoint(waypoint.NewWaypoint(w.ID, w.X, w.Y, w.R)); err != nil {
			return nil, err
		}
	}
	for _, q := range sc.Queues {
		if err := reg.AddWaitingQueue(waypoint.NewWaitingQueue(q.ID, q.X, q.Y, q.Direction, q.WaitMean)); err != nil {
			return nil, err
		}
	}

	for _, cs := range sc.Clusters {
		if len(cs.AgentIDs) == cs.Count {
			env.Alloc.Claim(cs.AgentIDs...)
		}
	}

	out := &Built{Name: sc.Name, Seed: sc.Seed, Registry: reg}
	for _, cs := range sc.Clusters {
		c, err := buildCluster(cs, reg, env)
		if err != nil {
			return nil, err
		}
		out.Clusters = append(out.Clusters, c)
	}
	return out, nil
}

func buildCluster(cs ClusterSpec, reg *waypoint.Registry, env Env) (*cluster.AgentCluster, error) {
	c, err := cluster.New(cs.ID, cs.X, cs.Y, cs.Count, cs.AgentIDs, cluster.Options{
		Alloc:    env.Alloc,
		Rand:     env.Rand,
		Defaults: env.Defaults,
	})
	if err != nil {
		return nil, err
	}
	if cs.Type != "" {
		t, err := agent.ParseType(cs.Type)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", cs.ID, err)
		}
		c.SetType(t)
	}
	if cs.WaypointMode != "" {
		m, err := agent.ParseWaypointMode(cs.WaypointMode)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", cs.ID, err)
		}
		c.SetWaypointMode(m)
	}
	if d := cs.Distribution; d != nil {
		if err := c.SetDistribution(d.W, d.H); err != nil {
			return nil, fmt.Errorf("cluster %d: %w", cs.ID, err)
		}
	}
	if cs.ShallCreateGroups != nil {
		c.SetShallCreateGroups(*cs.ShallCreateGroups)
	}
	if cs.Vmax != nil {
		c.SetVmax(*cs.Vmax)
	}
	c.SetBehavior(overrideBehavior(c.Behavior(), cs))

	for _, ref := range cs.Waypoints {
		n, ok := reg.Lookup(ref)
		if !ok {
			return nil, fmt.Errorf("cluster %d references unknown waypoint %q", cs.ID, ref)
		}
		if q, isQueue := n.(*waypoint.WaitingQueue); isQueue {
			err = c.AddWaitingQueue(q)
		} else {
			err = c.AddWaypoint(n)
		}
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", cs.ID, err)
		}
	}
	return c, nil
}

func overrideBehavior(b cluster.Behavior, cs ClusterSpec) cluster.Behavior {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&b.ForceFactorDesired, cs.ForceFactorDesired)
	set(&b.ForceFactorSocial, cs.ForceFactorSocial)
	set(&b.ForceFactorObstacle, cs.ForceFactorObstacle)
	set(&b.ChattingProbability, cs.ChattingProbability)
	set(&b.TellStoryProbability, cs.TellStoryProbability)
	set(&b.GroupTalkingProbability, cs.GroupTalkingProbability)
	set(&b.TalkingAndWalkingProbability, cs.TalkingAndWalkingProbability)
	set(&b.MaxTalkingDistance, cs.MaxTalkingDistance)
	return b
}
