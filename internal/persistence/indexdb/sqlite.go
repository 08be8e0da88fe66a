package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"pedsim.ai/internal/persistence/snapshot"
	"pedsim.ai/internal/sim/spawner"
)

// SQLiteIndex is a read model over spawn batches and snapshots. Writes are
// queued and applied by a single writer goroutine; the spawn log remains the
// source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqBatch reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	batch    batchRow
	snapshot snapshotRow
}

type batchRow struct {
	ID        string
	ClusterID int
	At        string
	Agents    []agentRow
}

type agentRow struct {
	AgentID int
	Name    string
	Index   int
	Type    string
	X, Y    float64
	Vmax    float64
}

type snapshotRow struct {
	Path      string
	Scenario  string
	Seed      int64
	CreatedAt string
	Clusters  int
	Agents    int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			batch_id TEXT PRIMARY KEY,
			cluster_id INTEGER NOT NULL,
			at TEXT NOT NULL,
			agents INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_batches_cluster ON batches(cluster_id, at);`,
		`CREATE TABLE IF NOT EXISTS agents (
			batch_id TEXT NOT NULL REFERENCES batches(batch_id),
			agent_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			idx INTEGER NOT NULL,
			type TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			vmax REAL NOT NULL,
			PRIMARY KEY (batch_id, agent_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_agent ON agents(agent_id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			seed INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			clusters INTEGER NOT NULL,
			agents INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped is the number of writes discarded because the queue was full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) WriteBatch(b spawner.Batch) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	r := batchRow{
		ID:        b.ID,
		ClusterID: b.ClusterID,
		At:        b.At.UTC().Format(time.RFC3339Nano),
		Agents:    make([]agentRow, 0, len(b.Agents)),
	}
	for _, a := range b.Agents {
		p := a.Position()
		r.Agents = append(r.Agents, agentRow{
			AgentID: a.AgentID,
			Name:    a.Name,
			Index:   a.Index,
			Type:    a.Type().String(),
			X:       p.X,
			Y:       p.Y,
			Vmax:    a.Vmax(),
		})
	}
	s.enqueue(req{kind: reqBatch, batch: r})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Path:      path,
		Scenario:  snap.Header.Scenario,
		Seed:      snap.Header.Seed,
		CreatedAt: snap.Header.CreatedAt.UTC().Format(time.RFC3339Nano),
		Clusters:  len(snap.Clusters),
		Agents:    len(snap.Agents),
	}})
}

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind.
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertBatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO batches(batch_id,cluster_id,at,agents) VALUES(?,?,?,?)`)
	insertAgent, _ := s.db.Prepare(`INSERT OR REPLACE INTO agents(batch_id,agent_id,name,idx,type,x,y,vmax) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,scenario,seed,created_at,clusters,agents) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertBatch, insertAgent, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqBatch:
			if insertBatch == nil || insertAgent == nil {
				continue
			}
			b := r.batch
			if _, err := tx.Stmt(insertBatch).Exec(b.ID, b.ClusterID, b.At, len(b.Agents)); err != nil {
				rollback()
				continue
			}
			failed := false
			for _, a := range b.Agents {
				if _, err := tx.Stmt(insertAgent).Exec(b.ID, a.AgentID, a.Name, a.Index, a.Type, a.X, a.Y, a.Vmax); err != nil {
					failed = true
					break
				}
			}
			if failed {
				rollback()
				continue
			}
			opCount += 1 + len(b.Agents)
		case reqSnapshot:
			if insertSnapshot == nil {
				continue
			}
			sr := r.snapshot
			if _, err := tx.Stmt(insertSnapshot).Exec(sr.Path, sr.Scenario, sr.Seed, sr.CreatedAt, sr.Clusters, sr.Agents); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

// BatchCount returns the number of indexed batches for a cluster.
func (s *SQLiteIndex) BatchCount(ctx context.Context, clusterID int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches WHERE cluster_id=?`, clusterID).Scan(&n)
	return n, err
}
