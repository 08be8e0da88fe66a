package spawner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pedsim.ai/internal/sim/agent"
	"pedsim.ai/internal/sim/cluster"
	"pedsim.ai/internal/sim/rng"
	"pedsim.ai/internal/sim/scene"
)

// Batch is the result of dissolving one cluster once.
type Batch struct {
	ID        string
	ClusterID int
	At        time.Time
	Agents    []*agent.Agent
}

// BatchSink receives every dissolved batch (spawn log, index, observers).
type BatchSink interface {
	WriteBatch(b Batch) error
}

type Spawner struct {
	scene *scene.Scene
	rand  rng.Source
	log   *slog.Logger
	sinks []BatchSink

	now func() time.Time
}

func New(s *scene.Scene, r rng.Source, logger *slog.Logger, sinks ...BatchSink) *Spawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{
		scene: s,
		rand:  r,
		log:   logger,
		sinks: sinks,
		now:   time.Now,
	}
}

func (s *Spawner) Scene() *scene.Scene { return s.scene }

// Dissolve spawns c into the scene and forwards the batch to every sink.
// Sink failures do not undo the spawn; they are logged and returned joined.
func (s *Spawner) Dissolve(ctx context.Context, c *cluster.AgentCluster) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	agents, err := c.Dissolve(s.rand, s.scene)
	if err != nil {
		return Batch{}, err
	}
	b := Batch{
		ID:        uuid.NewString(),
		ClusterID: c.ID(),
		At:        s.now().UTC(),
		Agents:    agents,
	}
	s.log.Info("cluster dissolved",
		"batch", b.ID,
		"cluster", b.ClusterID,
		"agents", len(agents),
		"scene_agents", s.scene.Len(),
	)

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.WriteBatch(b); err != nil {
			s.log.Warn("batch sink failed", "batch", b.ID, "err", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return b, fmt.Errorf("batch %s: %w", b.ID, err)
	}
	return b, nil
}

// DissolveAll dissolves clusters in order and stops at the first dissolve
// error. Sink errors are collected and do not stop the run.
func (s *Spawner) DissolveAll(ctx context.Context, clusters []*cluster.AgentCluster) ([]Batch, error) {
	out := make([]Batch, 0, len(clusters))
	var sinkErrs []error
	for _, c := range clusters {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		b, err := s.Dissolve(ctx, c)
		if b.ID == "" {
			return out, err
		}
		out = append(out, b)
		if err != nil {
			sinkErrs = append(sinkErrs, err)
		}
	}
	return out, errors.Join(sinkErrs...)
}
