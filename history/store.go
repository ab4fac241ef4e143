// Package history archives finished runs to a local BoltDB database so
// operators can inspect past outcomes after the process that produced them
// has moved on. It stores outcomes only; it never re-queues work.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/taskmesh/engine"
)

var bucketRuns = []byte("runs")

// Store persists run records. BoltDB is chosen for easy deployment (pure
// Go, single file, no C dependencies). Store implements engine.RunArchiver.
type Store struct {
	db *bbolt.DB

	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	opts := &bbolt.Options{
		Timeout:      1 * time.Second,
		NoSync:       false, // fsync for durability
		FreelistType: bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	meter := otel.Meter("taskmesh")
	readLatency, _ := meter.Float64Histogram("taskmesh_history_read_ms")
	writeLatency, _ := meter.Float64Histogram("taskmesh_history_write_ms")

	return &Store{db: db, readLatency: readLatency, writeLatency: writeLatency}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun stores one finished run keyed by its run id.
func (s *Store) SaveRun(ctx context.Context, rec engine.RunRecord) error {
	start := time.Now()
	defer func() {
		s.writeLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("operation", "save_run")))
	}()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", rec.RunID, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(rec.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("persist run %s: %w", rec.RunID, err)
	}
	return nil
}

// Run loads one archived run by id.
func (s *Store) Run(ctx context.Context, id string) (engine.RunRecord, bool, error) {
	start := time.Now()
	defer func() {
		s.readLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("operation", "get_run")))
	}()

	var rec engine.RunRecord
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshal run %s: %w", id, err)
		}
		found = true
		return nil
	})
	return rec, found, err
}

// Runs returns up to limit archived runs; zero means all. Records with
// unreadable payloads are skipped.
func (s *Store) Runs(ctx context.Context, limit int) ([]engine.RunRecord, error) {
	start := time.Now()
	defer func() {
		s.readLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("operation", "list_runs")))
	}()

	var out []engine.RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var rec engine.RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip invalid entries
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}
