// Package scenario loads scenario files and turns them into a waypoint
// registry and a list of agent clusters ready to be dissolved.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Scenario struct {
	Name         string         `json:"name,omitempty" yaml:"name,omitempty"`
	Seed         int64          `json:"seed,omitempty" yaml:"seed,omitempty"`
	FirstAgentID int            `json:"first_agent_id,omitempty" yaml:"first_agent_id,omitempty" jsonschema:"minimum=0"`
	Waypoints    []WaypointSpec `json:"waypoints,omitempty" yaml:"waypoints,omitempty"`
	Queues       []QueueSpec    `json:"queues,omitempty" yaml:"queues,omitempty"`
	Clusters     []ClusterSpec  `json:"clusters" yaml:"clusters"`
}

type WaypointSpec struct {
	ID string  `json:"id" yaml:"id" jsonschema:"minLength=1"`
	X  float64 `json:"x" yaml:"x"`
	Y  float64 `json:"y" yaml:"y"`
	R  float64 `json:"r,omitempty" yaml:"r,omitempty" jsonschema:"minimum=0"`
}

type QueueSpec struct {
	ID        string  `json:"id" yaml:"id" jsonschema:"minLength=1"`
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
	Direction float64 `json:"direction,omitempty" yaml:"direction,omitempty"`
	WaitMean  float64 `json:"wait_mean,omitempty" yaml:"wait_mean,omitempty" jsonschema:"minimum=0"`
}

type ClusterSpec struct {
	ID                int               `json:"id" yaml:"id"`
	X                 float64           `json:"x" yaml:"x"`
	Y                 float64           `json:"y" yaml:"y"`
	Count             int               `json:"count" yaml:"count" jsonschema:"minimum=0"`
	AgentIDs          []int             `json:"agent_ids,omitempty" yaml:"agent_ids,omitempty"`
	Distribution      *DistributionSpec `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	Type              string            `json:"type,omitempty" yaml:"type,omitempty" jsonschema:"enum=ADULT,enum=CHILD,enum=ROBOT,enum=ELDER"`
	WaypointMode      string            `json:"waypoint_mode,omitempty" yaml:"waypoint_mode,omitempty" jsonschema:"enum=LOOP,enum=ONCE,enum=RANDOM"`
	Waypoints         []string          `json:"waypoints,omitempty" yaml:"waypoints,omitempty"`
	ShallCreateGroups *bool             `json:"shall_create_groups,omitempty" yaml:"shall_create_groups,omitempty"`
	Vmax              *float64          `json:"vmax,omitempty" yaml:"vmax,omitempty" jsonschema:"minimum=0"`

	// Optional overrides of the tuning defaults for this cluster only.
	ForceFactorDesired           *float64 `json:"force_factor_desired,omitempty" yaml:"force_factor_desired,omitempty"`
	ForceFactorSocial            *float64 `json:"force_factor_social,omitempty" yaml:"force_factor_social,omitempty"`
	ForceFactorObstacle          *float64 `json:"force_factor_obstacle,omitempty" yaml:"force_factor_obstacle,omitempty"`
	ChattingProbability          *float64 `json:"chatting_probability,omitempty" yaml:"chatting_probability,omitempty" jsonschema:"minimum=0,maximum=1"`
	TellStoryProbability         *float64 `json:"tell_story_probability,omitempty" yaml:"tell_story_probability,omitempty" jsonschema:"minimum=0,maximum=1"`
	GroupTalkingProbability      *float64 `json:"group_talking_probability,omitempty" yaml:"group_talking_probability,omitempty" jsonschema:"minimum=0,maximum=1"`
	TalkingAndWalkingProbability *float64 `json:"talking_and_walking_probability,omitempty" yaml:"talking_and_walking_probability,omitempty" jsonschema:"minimum=0,maximum=1"`
	MaxTalkingDistance           *float64 `json:"max_talking_distance,omitempty" yaml:"max_talking_distance,omitempty" jsonschema:"minimum=0"`
}

type DistributionSpec struct {
	W float64 `json:"w" yaml:"w" jsonschema:"minimum=0"`
	H float64 `json:"h" yaml:"h" jsonschema:"minimum=0"`
}

func Load(path string) (Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	sc, err := Parse(b)
	if err != nil {
		return sc, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if strings.TrimSpace(sc.Name) == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// Parse decodes a scenario document, checks it against the scenario schema,
// and then runs the semantic checks in Validate.
func Parse(b []byte) (Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Scenario{}, err
	}
	if doc == nil {
		return Scenario{}, fmt.Errorf("empty scenario")
	}
	// Round trip through JSON so the validator sees plain JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario is not representable as JSON: %w", err)
	}
	var inst any
	if err := json.Unmarshal(raw, &inst); err != nil {
		return Scenario{}, err
	}
	schema, err := compiledSchema()
	if err != nil {
		return Scenario{}, err
	}
	if err := schema.Validate(inst); err != nil {
		return Scenario{}, fmt.Errorf("schema: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return Scenario{}, err
	}
	if err := sc.Validate(); err != nil {
		return sc, err
	}
	return sc, nil
}

func (s Scenario) Validate() error {
	names := map[string]bool{}
	for i, w := range s.Waypoints {
		id := strings.TrimSpace(w.ID)
		if id == "" {
			return fmt.Errorf("waypoints[%d] id must not be empty", i)
		}
		if names[id] {
			return fmt.Errorf("duplicate waypoint id: %s", id)
		}
		if w.R < 0 {
			return fmt.Errorf("waypoint %s r must be >= 0", id)
		}
		names[id] = true
	}
	for i, q := range s.Queues {
		id := strings.TrimSpace(q.ID)
		if id == "" {
			return fmt.Errorf("queues[%d] id must not be empty", i)
		}
		if names[id] {
			return fmt.Errorf("duplicate waypoint id: %s", id)
		}
		names[id] = true
	}

	clusterIDs := map[int]bool{}
	agentIDs := map[int]int{}
	for _, c := range s.Clusters {
		if clusterIDs[c.ID] {
			return fmt.Errorf("duplicate cluster id: %d", c.ID)
		}
		clusterIDs[c.ID] = true
		if c.Count < 0 {
			return fmt.Errorf("cluster %d count must be >= 0", c.ID)
		}
		if d := c.Distribution; d != nil && (d.W < 0 || d.H < 0) {
			return fmt.Errorf("cluster %d distribution must be >= 0", c.ID)
		}
		if c.Vmax != nil && *c.Vmax < 0 {
			return fmt.Errorf("cluster %d vmax must be >= 0", c.ID)
		}
		for name, p := range map[string]*float64{
			"chatting_probability":            c.ChattingProbability,
			"tell_story_probability":          c.TellStoryProbability,
			"group_talking_probability":       c.GroupTalkingProbability,
			"talking_and_walking_probability": c.TalkingAndWalkingProbability,
		} {
			if p != nil && (*p < 0 || *p > 1) {
				return fmt.Errorf("cluster %d %s must be in [0, 1]", c.ID, name)
			}
		}
		if c.MaxTalkingDistance != nil && *c.MaxTalkingDistance < 0 {
			return fmt.Errorf("cluster %d max_talking_distance must be >= 0", c.ID)
		}
		for _, ref := range c.Waypoints {
			if !names[ref] {
				return fmt.Errorf("cluster %d references unknown waypoint %q", c.ID, ref)
			}
		}
		// Mismatched id lists are replaced at construction, so only
		// matching lists can collide.
		if len(c.AgentIDs) == c.Count {
			for _, id := range c.AgentIDs {
				if other, ok := agentIDs[id]; ok {
					return fmt.Errorf("agent id %d used by clusters %d and %d", id, other, c.ID)
				}
				agentIDs[id] = c.ID
			}
		}
	}
	return nil
}
