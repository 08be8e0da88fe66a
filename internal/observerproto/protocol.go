package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeSubscribed = "SUBSCRIBED"
	TypeEvent      = "EVENT"
)

// Event kinds carried by EventMsg.
const (
	KindClusterMoved   = "CLUSTER_MOVED"
	KindClusterRetyped = "CLUSTER_RETYPED"
	KindAgentAdded     = "AGENT_ADDED"
	KindSceneCleared   = "SCENE_CLEARED"
	// The observed scene was swapped for a new one; clients re-bootstrap.
	KindSceneReplaced = "SCENE_REPLACED"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// Server -> Client. Acknowledges SUBSCRIBE; events follow.
type SubscribedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string         `json:"protocol_version"`
	Scenario        string         `json:"scenario"`
	Seed            int64          `json:"seed"`
	AgentCount      int            `json:"agent_count"`
	Clusters        []ClusterState `json:"clusters"`
}

type ClusterState struct {
	ID           int        `json:"id"`
	Pos          [2]float64 `json:"pos"`
	Count        int        `json:"count"`
	Type         string     `json:"type"`
	Distribution [2]float64 `json:"distribution"`
	Waypoints    []string   `json:"waypoints,omitempty"`
}

type AgentState struct {
	AgentID int        `json:"agent_id"`
	Name    string     `json:"name"`
	Type    string     `json:"type"`
	Pos     [2]float64 `json:"pos"`
	Vmax    float64    `json:"vmax"`
}

// Server -> Client. One message per scene or cluster change.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Kind            string `json:"kind"`

	ClusterID  int         `json:"cluster_id,omitempty"`
	Pos        *[2]float64 `json:"pos,omitempty"`
	AgentType  string      `json:"agent_type,omitempty"`
	Agent      *AgentState `json:"agent,omitempty"`
	AgentCount int         `json:"agent_count"`
}
