package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"pedsim.ai/internal/sim/agent"
	"pedsim.ai/internal/sim/cluster"
	"pedsim.ai/internal/sim/waypoint"
)

const Version = 1

type Header struct {
	Version   int       `json:"version"`
	Scenario  string    `json:"scenario"`
	Seed      int64     `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Waypoints []WaypointV1 `json:"waypoints"`
	Clusters  []ClusterV1  `json:"clusters"`
	Agents    []AgentV1    `json:"agents"`
}

type WaypointV1 struct {
	ID   string  `json:"id"`
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type ClusterV1 struct {
	ID           int        `json:"id"`
	Pos          [2]float64 `json:"pos"`
	Count        int        `json:"count"`
	AgentIDs     []int      `json:"agent_ids"`
	Distribution [2]float64 `json:"distribution"`
	Type         string     `json:"type"`
	Mode         string     `json:"waypoint_mode"`
	Vmax         float64    `json:"vmax"`
	Groups       bool       `json:"shall_create_groups"`
	Waypoints    []string   `json:"waypoints,omitempty"`
}

type AgentV1 struct {
	AgentID    int        `json:"agent_id"`
	Name       string     `json:"name"`
	Index      int        `json:"index"`
	Type       string     `json:"type"`
	Pos        [2]float64 `json:"pos"`
	InitialPos [2]float64 `json:"initial_pos"`
	Vmax       float64    `json:"vmax"`
	Mode       string     `json:"waypoint_mode"`

	ForceFactors  [3]float64 `json:"force_factors"`
	Probabilities [4]float64 `json:"probabilities"`
	MaxTalkDist   float64    `json:"max_talking_distance"`
	BaseTimes     [4]float64 `json:"base_times"`

	Waypoints []string `json:"waypoints,omitempty"`
}

// FromScene captures the waypoints, clusters and spawned agents of a scenario
// run.
func FromScene(scenario string, seed int64, reg *waypoint.Registry, clusters []*cluster.AgentCluster, agents []*agent.Agent) SnapshotV1 {
	snap := SnapshotV1{
		Header: Header{
			Version:   Version,
			Scenario:  scenario,
			Seed:      seed,
			CreatedAt: time.Now().UTC(),
		},
	}
	if reg != nil {
		for _, w := range reg.All() {
			p := w.Position()
			snap.Waypoints = append(snap.Waypoints, WaypointV1{ID: w.WaypointID(), Kind: string(w.Kind()), X: p.X, Y: p.Y})
		}
	}
	for _, c := range clusters {
		p, d := c.Position(), c.Distribution()
		snap.Clusters = append(snap.Clusters, ClusterV1{
			ID:           c.ID(),
			Pos:          [2]float64{p.X, p.Y},
			Count:        c.Count(),
			AgentIDs:     c.AgentIDs(),
			Distribution: [2]float64{d.Width, d.Height},
			Type:         c.Type().String(),
			Mode:         c.WaypointMode().String(),
			Vmax:         c.Vmax(),
			Groups:       c.ShallCreateGroups(),
			Waypoints:    waypoint.IDs(c.Waypoints()),
		})
	}
	for _, a := range agents {
		p, ip := a.Position(), a.InitialPosition()
		sm := a.StateMachine
		snap.Agents = append(snap.Agents, AgentV1{
			AgentID:    a.AgentID,
			Name:       a.Name,
			Index:      a.Index,
			Type:       a.Type().String(),
			Pos:        [2]float64{p.X, p.Y},
			InitialPos: [2]float64{ip.X, ip.Y},
			Vmax:       a.Vmax(),
			Mode:       a.WaypointMode.String(),
			ForceFactors: [3]float64{
				a.ForceFactorDesired(), a.ForceFactorSocial(), a.ForceFactorObstacle(),
			},
			Probabilities: [4]float64{
				a.ChattingProbability, a.TellStoryProbability,
				a.GroupTalkingProbability, a.TalkingAndWalkingProbability,
			},
			MaxTalkDist: a.MaxTalkingDistance,
			BaseTimes: [4]float64{
				sm.TalkingBaseTime, sm.TellStoryBaseTime,
				sm.GroupTalkingBaseTime, sm.TalkingAndWalkingBaseTime,
			},
			Waypoints: waypoint.IDs(a.Waypoints()),
		})
	}
	return snap
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded
// snapshot, zstd compressed.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, enc.Close()) }()

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return bw.Flush()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
