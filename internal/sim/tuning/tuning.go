package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pedsim.ai/internal/sim/agent"
)

// ClusterDefaults are the values a freshly constructed cluster starts with.
type ClusterDefaults struct {
	VmaxMean   float64 `yaml:"vmax_mean"`
	VmaxStddev float64 `yaml:"vmax_stddev"`

	ForceFactorDesired  float64 `yaml:"force_factor_desired"`
	ForceFactorSocial   float64 `yaml:"force_factor_social"`
	ForceFactorObstacle float64 `yaml:"force_factor_obstacle"`

	ChattingProbability          float64 `yaml:"chatting_probability"`
	TellStoryProbability         float64 `yaml:"tell_story_probability"`
	GroupTalkingProbability      float64 `yaml:"group_talking_probability"`
	TalkingAndWalkingProbability float64 `yaml:"talking_and_walking_probability"`
	MaxTalkingDistance           float64 `yaml:"max_talking_distance"`

	BaseTimes BaseTimes `yaml:"base_times"`

	AgentType         agent.Type         `yaml:"agent_type"`
	WaypointMode      agent.WaypointMode `yaml:"waypoint_mode"`
	ShallCreateGroups bool               `yaml:"shall_create_groups"`
}

type BaseTimes struct {
	Talking           float64 `yaml:"talking"`
	TellStory         float64 `yaml:"tell_story"`
	GroupTalking      float64 `yaml:"group_talking"`
	TalkingAndWalking float64 `yaml:"talking_and_walking"`
}

func Defaults() ClusterDefaults {
	return ClusterDefaults{
		VmaxMean:   0.6,
		VmaxStddev: 0.2,

		ForceFactorDesired:  1.0,
		ForceFactorSocial:   2.0,
		ForceFactorObstacle: 10.0,

		ChattingProbability:          0.1,
		TellStoryProbability:         0.001,
		GroupTalkingProbability:      0.001,
		TalkingAndWalkingProbability: 0.001,
		MaxTalkingDistance:           0.001,

		BaseTimes: BaseTimes{
			Talking:           6.0,
			TellStory:         6.0,
			GroupTalking:      6.0,
			TalkingAndWalking: 6.0,
		},

		AgentType:         agent.Adult,
		WaypointMode:      agent.Loop,
		ShallCreateGroups: true,
	}
}

// Load reads a tuning file on top of Defaults. Keys absent from the file keep
// their default value.
func Load(path string) (ClusterDefaults, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t ClusterDefaults) Validate() error {
	if t.VmaxStddev < 0 {
		return fmt.Errorf("vmax_stddev must be >= 0")
	}
	probs := []struct {
		name string
		v    float64
	}{
		{"chatting_probability", t.ChattingProbability},
		{"tell_story_probability", t.TellStoryProbability},
		{"group_talking_probability", t.GroupTalkingProbability},
		{"talking_and_walking_probability", t.TalkingAndWalkingProbability},
	}
	for _, p := range probs {
		if p.v < 0 || p.v > 1 {
			return fmt.Errorf("%s must be in [0, 1]", p.name)
		}
	}
	if t.MaxTalkingDistance < 0 {
		return fmt.Errorf("max_talking_distance must be >= 0")
	}
	bt := t.BaseTimes
	if bt.Talking <= 0 || bt.TellStory <= 0 || bt.GroupTalking <= 0 || bt.TalkingAndWalking <= 0 {
		return fmt.Errorf("base_times must be > 0")
	}
	if t.AgentType < agent.Adult || t.AgentType > agent.Elder {
		return fmt.Errorf("unknown agent_type %d", int(t.AgentType))
	}
	if t.WaypointMode < agent.Loop || t.WaypointMode > agent.Random {
		return fmt.Errorf("unknown waypoint_mode %d", int(t.WaypointMode))
	}
	return nil
}
