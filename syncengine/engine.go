package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/chunk"
	"github.com/seqdag/seqdag/delta"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
	"github.com/seqdag/seqdag/manifest"
	"github.com/seqdag/seqdag/merkledag"
	"github.com/seqdag/seqdag/seqstore"
	"github.com/seqdag/seqdag/temporal"
)

// Fetcher obtains chunk, sequence and delta payload bytes from a remote
// peer (implemented by the transport client). Every fetch result is
// verified by the engine against the hash it was requested by — a
// misbehaving or lying Fetcher can only cause a VerificationError, never a
// bad commit.
type Fetcher interface {
	FetchChunk(ctx context.Context, hash hashcodec.Hash) (chunk.Chunk, error)
	FetchSequence(ctx context.Context, hash hashcodec.Hash) ([]byte, error)
	FetchDeltaOps(ctx context.Context, hash hashcodec.Hash) ([]delta.Op, error)
}

// Config tunes backpressure for Engine.Sync.
type Config struct {
	Concurrency int           // max in-flight fetches
	MaxAttempts int           // per-fetch retry budget before giving up
	BaseBackoff time.Duration // first retry delay, doubled each attempt
}

func DefaultConfig() Config {
	return Config{Concurrency: 8, MaxAttempts: 5, BaseBackoff: 200 * time.Millisecond}
}

// Engine drives manifest-diff sync against a single Fetcher.
type Engine struct {
	db        *kvstore.DB
	chunks    *chunk.Store
	sequences *seqstore.Store
	deltas    *delta.Store
	manifests *manifest.Store
	temporalI *temporal.Index
	fetcher   Fetcher
	cfg       Config
}

func NewEngine(db *kvstore.DB, chunks *chunk.Store, sequences *seqstore.Store, deltas *delta.Store, manifests *manifest.Store, temporalIndex *temporal.Index, fetcher Fetcher, cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	return &Engine{db: db, chunks: chunks, sequences: sequences, deltas: deltas, manifests: manifests, temporalI: temporalIndex, fetcher: fetcher, cfg: cfg}
}

// Sync fetches everything remote has that local lacks, verifies it, and
// installs remote as the new head in one atomic batch. On any fetch or
// verification failure, the manifest and temporal record are not committed
// and the local head is unchanged.
// Successfully staged chunks are written to the store as they verify, so a
// retried Sync after a failure does not re-fetch them; only the
// manifest/temporal advance is withheld until the whole plan succeeds.
func (e *Engine) Sync(ctx context.Context, local, remote manifest.Manifest, coord temporal.Coordinate) error {
	if root := merkledag.Root(manifest.Fanout, remote.ChunkList); root != remote.MerkleRoot {
		return bioerr.VerificationError("syncengine.Sync", remote.ManifestID, remote.MerkleRoot.Bytes(), root.Bytes())
	}

	needed, _ := Diff(local, remote)
	if len(needed) == 0 {
		return e.install(remote, coord)
	}

	fetchedChunks, err := e.fetchChunks(ctx, needed)
	if err != nil {
		// A chunk that arrived but failed its hash check surfaces as a
		// VerificationError; everything else (404s, transport faults,
		// exhausted retries) is the remote being unable to supply the chunk.
		if kind, ok := bioerr.KindOf(err); ok && kind == bioerr.KindVerification {
			return err
		}
		return bioerr.ChunkUnavailable("syncengine.Sync", err.Error())
	}

	order, err := PlanFetch(needed, fetchedChunks)
	if err != nil {
		return bioerr.New(bioerr.KindSchema, "syncengine.Sync", remote.ManifestID, err)
	}

	for _, h := range order {
		c := fetchedChunks[h]
		if err := e.materialize(ctx, c); err != nil {
			return err
		}
		if err := e.putChunk(c); err != nil {
			return err
		}
	}

	return e.install(remote, coord)
}

// putChunk commits a single verified chunk, once materialize has stored the
// sequences and delta payloads it references, immediately — independent of
// the final manifest/temporal advance. Every DeltaRef the chunk
// carries is also recorded in the target-hash reverse index, so query.
// Reconstruct can find a synced delta's chain the same way it finds one
// sealed locally during ingest.
func (e *Engine) putChunk(c chunk.Chunk) error {
	op, err := e.chunks.PutOp(c)
	if err != nil {
		return bioerr.StorageError("syncengine.putChunk", err)
	}
	ops := make([]kvstore.Op, 0, 1+len(c.DeltaRefs))
	ops = append(ops, op)
	for _, dr := range c.DeltaRefs {
		ops = append(ops, delta.IndexOp(dr.TargetHash, delta.IndexEntry{
			ReferenceHash:    dr.ReferenceHash,
			DeltaPayloadHash: dr.DeltaPayloadHash,
		}))
	}
	return e.db.PutBatch(ops)
}

// materialize fetches and verifies every canonical sequence and delta
// payload c references that is not already present, staging each directly
// (content-addressed, so a redundant write is harmless).
func (e *Engine) materialize(ctx context.Context, c chunk.Chunk) error {
	for _, seqHash := range c.SequenceRefs {
		if ok, err := e.sequenceExists(seqHash); err != nil {
			return err
		} else if ok {
			continue
		}
		var raw []byte
		err := withRetry(ctx, e.cfg.MaxAttempts, e.cfg.BaseBackoff, func() error {
			var ferr error
			raw, ferr = e.fetcher.FetchSequence(ctx, seqHash)
			return ferr
		})
		if err != nil {
			return bioerr.ChunkUnavailable("syncengine.materialize", seqHash.String())
		}
		if actual := hashcodec.HashSequence(raw); actual != seqHash {
			return bioerr.VerificationError("syncengine.materialize", seqHash.String(), seqHash.Bytes(), actual.Bytes())
		}
		op, h, err := e.sequences.PutOp(raw)
		if err != nil {
			return bioerr.StorageError("syncengine.materialize", err)
		}
		if err := e.db.PutBatch([]kvstore.Op{op}); err != nil {
			return err
		}
		e.sequences.NoteInserted(h)
	}

	for _, dr := range c.DeltaRefs {
		if ok, err := e.db.Exists(kvstore.CFDeltas, dr.DeltaPayloadHash.Bytes()); err != nil {
			return err
		} else if ok {
			continue
		}
		var ops []delta.Op
		err := withRetry(ctx, e.cfg.MaxAttempts, e.cfg.BaseBackoff, func() error {
			var ferr error
			ops, ferr = e.fetcher.FetchDeltaOps(ctx, dr.DeltaPayloadHash)
			return ferr
		})
		if err != nil {
			return bioerr.ChunkUnavailable("syncengine.materialize", dr.DeltaPayloadHash.String())
		}
		op, h, err := e.deltas.PutOp(ops)
		if err != nil {
			return bioerr.StorageError("syncengine.materialize", err)
		}
		if h != dr.DeltaPayloadHash {
			return bioerr.VerificationError("syncengine.materialize", dr.DeltaPayloadHash.String(), dr.DeltaPayloadHash.Bytes(), h.Bytes())
		}
		if err := e.db.PutBatch([]kvstore.Op{op}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) sequenceExists(h hashcodec.Hash) (bool, error) {
	return e.db.Exists(kvstore.CFSequences, h.Bytes())
}

// fetchChunks fetches and verifies every needed chunk object concurrently,
// bounded by cfg.Concurrency.
func (e *Engine) fetchChunks(ctx context.Context, needed []hashcodec.Hash) (map[hashcodec.Hash]chunk.Chunk, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	results := make(map[hashcodec.Hash]chunk.Chunk, len(needed))
	var mu sync.Mutex
	for _, h := range needed {
		h := h
		g.Go(func() error {
			if local, err := e.chunks.Get(h); err == nil {
				mu.Lock()
				results[h] = local
				mu.Unlock()
				return nil
			}
			var c chunk.Chunk
			err := withRetry(gctx, e.cfg.MaxAttempts, e.cfg.BaseBackoff, func() error {
				var ferr error
				c, ferr = e.fetcher.FetchChunk(gctx, h)
				return ferr
			})
			if err != nil {
				return fmt.Errorf("chunk %s: %w", h, err)
			}
			if c.Hash() != h {
				return fmt.Errorf("chunk %s: %w", h, bioerr.VerificationError("syncengine.fetchChunks", h.String(), h.Bytes(), c.Hash().Bytes()))
			}
			op, err := e.chunks.PutOp(c)
			if err != nil {
				return bioerr.StorageError("syncengine.fetchChunks", err)
			}
			if err := e.db.PutBatch([]kvstore.Op{op}); err != nil {
				return err
			}
			mu.Lock()
			results[h] = c
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// install commits the manifest, its Merkle nodes and its temporal record
// as one atomic batch, advancing the head.
func (e *Engine) install(remote manifest.Manifest, coord temporal.Coordinate) error {
	manifestOp, err := e.manifests.PutOp(remote)
	if err != nil {
		return bioerr.StorageError("syncengine.install", err)
	}
	temporalOp, err := e.temporalI.RecordOp(remote.ManifestID, coord, remote.MerkleRoot)
	if err != nil {
		return err
	}
	ops := append(merkledag.PutOps(manifest.Fanout, remote.ChunkList), manifestOp, temporalOp)
	return e.db.PutBatch(ops)
}
