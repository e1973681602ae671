package main

import (
	"fmt"
	"log/slog"

	"github.com/seqdag/seqdag/chunk"
	"github.com/seqdag/seqdag/config"
	"github.com/seqdag/seqdag/delta"
	"github.com/seqdag/seqdag/filter"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/ingest"
	"github.com/seqdag/seqdag/kvstore"
	"github.com/seqdag/seqdag/manifest"
	"github.com/seqdag/seqdag/query"
	"github.com/seqdag/seqdag/seqstore"
	"github.com/seqdag/seqdag/temporal"
)

// App wires every component into the shape a CLI command actually calls.
// Everything, the logger included, is threaded explicitly through its
// constructor; there are no package-level defaults.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	db        *kvstore.DB
	filt      *filter.Filter
	codec     *hashcodec.Codec
	sequences *seqstore.Store
	chunks    *chunk.Store
	deltas    *delta.Store
	manifests *manifest.Store
	temporal  *temporal.Index

	pipeline *ingest.Pipeline
	facade   *query.Facade
}

func layout(cfg config.Config) kvstore.Layout { return kvstore.NewLayout(cfg.DataDir) }

func dbPath(cfg config.Config) string     { return layout(cfg).DBFile() }
func filterPath(cfg config.Config) string { return layout(cfg).FilterSnapshotPath() }
func configPath(cfg config.Config) string { return layout(cfg).ConfigPath() }

// initDataDir seeds a fresh base directory: the KV store (which creates its
// column families on open), an empty filter checkpoint, and config.toml —
// the three artifacts a store base directory holds.
func initDataDir(cfg config.Config) error {
	if err := layout(cfg).EnsureDirs(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := kvstore.Open(dbPath(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := filter.New(1, cfg.FilterFPRate)
	if err != nil {
		return err
	}
	if err := f.Checkpoint(filterPath(cfg)); err != nil {
		return fmt.Errorf("seed filter checkpoint: %w", err)
	}
	return config.Save(configPath(cfg), cfg)
}

// openApp opens an already-initialized base directory and assembles every
// component, rebuilding the membership filter from the sequence store when
// no checkpoint is present (a stale or missing filter is always safe
// because every positive is confirmed against the store).
func openApp(cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := kvstore.Open(dbPath(cfg))
	if err != nil {
		return nil, err
	}

	f, err := filter.LoadCheckpoint(filterPath(cfg))
	if err != nil {
		logger.Warn("filter checkpoint unavailable, rebuilding from sequence store", "error", err)
		count, countErr := db.Count(kvstore.CFSequences)
		if countErr != nil {
			_ = db.Close()
			return nil, countErr
		}
		keys := make([][]byte, 0, count)
		iterErr := db.IterPrefix(kvstore.CFSequences, nil, func(kv kvstore.KV) bool {
			keys = append(keys, append([]byte(nil), kv.Key...))
			return true
		})
		if iterErr != nil {
			_ = db.Close()
			return nil, iterErr
		}
		i := 0
		f, err = filter.RebuildFromIterator(uint64(len(keys))+1, cfg.FilterFPRate, func() (hashcodec.Hash, bool) {
			if i >= len(keys) {
				return hashcodec.Hash{}, false
			}
			h, ok := hashcodec.HashFromBytes(keys[i])
			i++
			if !ok {
				return hashcodec.Hash{}, false
			}
			return h, true
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	codec := hashcodec.NewCodec(cfg.CompressionLevel)
	sequences := seqstore.New(db, f, codec, cfg.StrictAlphabet)
	chunks := chunk.NewStore(db, codec)
	deltas := delta.NewStore(db, codec)
	manifests := manifest.NewStore(db, codec)
	temporalIndex, err := temporal.New(db, 64)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	icfg := ingest.DefaultConfig()
	icfg.Threads = cfg.Threads
	icfg.StrictAlphabet = cfg.StrictAlphabet
	pipeline := ingest.New(db, sequences, chunks, deltas, manifests, temporalIndex, icfg)

	facade, err := query.New(db, sequences, chunks, deltas, manifests, 1024)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		filt:      f,
		codec:     codec,
		sequences: sequences,
		chunks:    chunks,
		deltas:    deltas,
		manifests: manifests,
		temporal:  temporalIndex,
		pipeline:  pipeline,
		facade:    facade,
	}, nil
}

// Close flushes the filter checkpoint and releases the KV store handle.
func (a *App) Close() error {
	if err := a.filt.Checkpoint(filterPath(a.cfg)); err != nil {
		a.logger.Warn("filter checkpoint failed", "error", err)
	}
	return a.db.Close()
}
