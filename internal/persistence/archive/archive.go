package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"pedsim.ai/internal/persistence/snapshot"
)

type Meta struct {
	Scenario   string `json:"scenario"`
	Generation int    `json:"generation"`
	Seed       int64  `json:"seed"`
	Clusters   int    `json:"clusters"`
	Agents     int    `json:"agents"`
	Snapshot   string `json:"snapshot"`
	CreatedAt  string `json:"created_at"`
	ArchivedAt string `json:"archived_at"`
}

// ArchiveSnapshot copies a snapshot that is about to be replaced into
// `dataDir/archives/<scenario>/gen_<NNN>/` next to a meta.json. Generations
// start at 1; gen <= 0 is rejected.
func ArchiveSnapshot(dataDir, snapshotPath string, gen int, snap snapshot.SnapshotV1) (archivedPath string, err error) {
	if gen <= 0 {
		return "", fmt.Errorf("archive: generation must be > 0, got %d", gen)
	}
	name := snap.Header.Scenario
	if name == "" {
		return "", fmt.Errorf("archive: snapshot has no scenario name")
	}

	archiveDir := filepath.Join(dataDir, "archives", name, fmt.Sprintf("gen_%03d", gen))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	meta := Meta{
		Scenario:   name,
		Generation: gen,
		Seed:       snap.Header.Seed,
		Clusters:   len(snap.Clusters),
		Agents:     len(snap.Agents),
		Snapshot:   filepath.Base(dst),
		CreatedAt:  snap.Header.CreatedAt.UTC().Format(time.RFC3339Nano),
		ArchivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

// ReadMeta loads the meta.json of an archived generation directory.
func ReadMeta(dir string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
