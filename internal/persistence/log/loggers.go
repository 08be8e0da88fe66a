package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"pedsim.ai/internal/sim/spawner"
	"pedsim.ai/internal/sim/waypoint"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

type SpawnEntry struct {
	BatchID   string       `json:"batch_id"`
	ClusterID int          `json:"cluster_id"`
	At        time.Time    `json:"at"`
	Agents    []AgentEntry `json:"agents"`
}

type AgentEntry struct {
	AgentID   int        `json:"agent_id"`
	Name      string     `json:"name"`
	Index     int        `json:"index"`
	Type      string     `json:"type"`
	Pos       [2]float64 `json:"pos"`
	Vmax      float64    `json:"vmax"`
	Mode      string     `json:"waypoint_mode"`
	Waypoints []string   `json:"waypoints,omitempty"`
}

func EntryFromBatch(b spawner.Batch) SpawnEntry {
	e := SpawnEntry{
		BatchID:   b.ID,
		ClusterID: b.ClusterID,
		At:        b.At,
		Agents:    make([]AgentEntry, 0, len(b.Agents)),
	}
	for _, a := range b.Agents {
		p := a.Position()
		e.Agents = append(e.Agents, AgentEntry{
			AgentID:   a.AgentID,
			Name:      a.Name,
			Index:     a.Index,
			Type:      a.Type().String(),
			Pos:       [2]float64{p.X, p.Y},
			Vmax:      a.Vmax(),
			Mode:      a.WaypointMode.String(),
			Waypoints: waypoint.IDs(a.Waypoints()),
		})
	}
	return e
}

// SpawnLogger writes one JSONL entry per dissolved batch (compressed).
type SpawnLogger struct{ w *JSONLZstdWriter }

func NewSpawnLogger(dataDir string) *SpawnLogger {
	return &SpawnLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "spawns"), "spawns")}
}

func (l *SpawnLogger) WriteBatch(b spawner.Batch) error { return l.w.Write(EntryFromBatch(b)) }
func (l *SpawnLogger) Close() error                     { return l.w.Close() }

// ReadSpawnLog decodes every entry of a spawn log file.
func ReadSpawnLog(path string) ([]SpawnEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []SpawnEntry
	jd := json.NewDecoder(bufio.NewReaderSize(dec, 128*1024))
	for jd.More() {
		var e SpawnEntry
		if err := jd.Decode(&e); err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
	return out, nil
}
