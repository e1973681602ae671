package ingest

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
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
	"github.com/seqdag/seqdag/seqindex"
	"github.com/seqdag/seqdag/seqstore"
	"github.com/seqdag/seqdag/temporal"
)

// Config tunes the pipeline's worker pool and chunking.
type Config struct {
	Threads             int // hash/normalize worker count
	StrictAlphabet      bool
	Parsers             []HeaderParser // nil selects defaultParsers
	ChunkConfig         chunk.Config
	SimilarityThreshold float64
}

func DefaultConfig() Config {
	return Config{
		Threads:             runtime.NumCPU(),
		ChunkConfig:         chunk.DefaultConfig(),
		SimilarityThreshold: delta.DefaultSimilarityThreshold,
	}
}

// Pipeline drives ingestion end to end: parse, normalize+hash, dedup-check and
// store, index, chunk, delta-encode, and seal a manifest.
type Pipeline struct {
	db        *kvstore.DB
	sequences *seqstore.Store
	chunks    *chunk.Store
	deltas    *delta.Store
	manifests *manifest.Store
	temporalI *temporal.Index
	cfg       Config

	// sealMu serializes concurrent ingestions targeting the same
	// manifest-id; distinct manifest-ids proceed independently.
	sealMu sync.Mutex
	seals  map[string]*sync.Mutex
}

func New(db *kvstore.DB, sequences *seqstore.Store, chunks *chunk.Store, deltas *delta.Store, manifests *manifest.Store, temporalIndex *temporal.Index, cfg Config) *Pipeline {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if cfg.Parsers == nil {
		cfg.Parsers = defaultParsers
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = delta.DefaultSimilarityThreshold
	}
	return &Pipeline{db: db, sequences: sequences, chunks: chunks, deltas: deltas, manifests: manifests, temporalI: temporalIndex, cfg: cfg, seals: map[string]*sync.Mutex{}}
}

func (p *Pipeline) sealLock(manifestID string) *sync.Mutex {
	p.sealMu.Lock()
	defer p.sealMu.Unlock()
	mu, ok := p.seals[manifestID]
	if !ok {
		mu = &sync.Mutex{}
		p.seals[manifestID] = mu
	}
	return mu
}

// normalizedRecord is one record after header parsing and content normalization,
// ready for the committer to batch.
type normalizedRecord struct {
	hash   hashcodec.Hash
	bytes  []byte
	header string
	parsed ParsedHeader
}

// Ingest streams r (a FASTA file attributed to sourceTag) into manifestID,
// sealing a new manifest version at (ingestTime, taxonomyTime). Ordering
// guarantee: a sequence's representation and index writes are committed in
// the same batch as the sequence itself.
func (p *Pipeline) Ingest(ctx context.Context, sourceTag string, r io.Reader, manifestID string, ingestTime, taxonomyTime time.Time) (manifest.Manifest, error) {
	rawCh := make(chan Record, p.cfg.Threads*4)
	normCh := make(chan normalizedRecord, p.cfg.Threads*4)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rawCh)
		sc := NewScanner(r)
		for sc.Scan() {
			select {
			case rawCh <- sc.Record():
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return sc.Err()
	})

	var workersWG sync.WaitGroup
	workersWG.Add(p.cfg.Threads)
	for i := 0; i < p.cfg.Threads; i++ {
		g.Go(func() error {
			defer workersWG.Done()
			for rec := range rawCh {
				normalized, err := hashcodec.NormalizeSequence(rec.Sequence, p.cfg.StrictAlphabet)
				if err != nil {
					ae, _ := err.(*hashcodec.AlphabetError)
					if ae != nil {
						return bioerr.InvalidAlphabet("ingest.Pipeline.Ingest", ae.Position, ae.Byte)
					}
					return bioerr.New(bioerr.KindInvalidAlphabet, "ingest.Pipeline.Ingest", "", err)
				}
				nr := normalizedRecord{
					hash:   hashcodec.HashSequence(normalized),
					bytes:  normalized,
					header: rec.Header,
					parsed: ParseHeader(rec.Header, p.cfg.Parsers),
				}
				select {
				case normCh <- nr:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workersWG.Wait()
		close(normCh)
	}()

	var records []chunk.Record
	g.Go(func() error {
		for nr := range normCh {
			rec, err := p.commitRecord(sourceTag, nr, ingestTime)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return manifest.Manifest{}, err
	}

	return p.seal(manifestID, records, ingestTime, taxonomyTime)
}

// commitRecord writes one sequence's canonical bytes, representation, and
// indices atomically, content-addressed so a racing or repeat write is
// harmless.
func (p *Pipeline) commitRecord(sourceTag string, nr normalizedRecord, ingestTime time.Time) (chunk.Record, error) {
	seqOp, h, err := p.sequences.PutOp(nr.bytes)
	if err != nil {
		return chunk.Record{}, err
	}
	repOp, err := p.sequences.RepresentationOp(h, seqstore.Representation{
		SourceTag:      sourceTag,
		OriginalHeader: nr.header,
		Accession:      nr.parsed.Accession,
		TaxonID:        nr.parsed.TaxonID,
		IngestTime:     ingestTime,
	})
	if err != nil {
		return chunk.Record{}, err
	}
	accOp, err := seqindex.AccessionIndexOp(p.db, sourceTag, nr.parsed.Accession, h, ingestTime)
	if err != nil {
		return chunk.Record{}, err
	}
	taxOp := seqindex.TaxonIndexOp(nr.parsed.TaxonID, h)

	if err := p.db.PutBatch([]kvstore.Op{seqOp, repOp, accOp, taxOp}); err != nil {
		return chunk.Record{}, err
	}
	p.sequences.NoteInserted(h)

	return chunk.Record{
		Hash:      h,
		TaxonPath: []string{nr.parsed.TaxonID},
		Accession: nr.parsed.Accession,
		Length:    len(nr.bytes),
	}, nil
}

// seal partitions the ingested records into chunks, delta-encodes what it
// can, builds the Merkle root, and commits the manifest plus its temporal
// record as one atomic batch.
func (p *Pipeline) seal(manifestID string, records []chunk.Record, ingestTime, taxonomyTime time.Time) (manifest.Manifest, error) {
	mu := p.sealLock(manifestID)
	mu.Lock()
	defer mu.Unlock()

	groups := chunk.Partition(records, p.cfg.ChunkConfig)

	chunkList := make([]hashcodec.Hash, 0, len(groups))
	for _, group := range groups {
		sealed, ops, err := p.sealGroup(group, ingestTime)
		if err != nil {
			return manifest.Manifest{}, err
		}
		if err := p.db.PutBatch(ops); err != nil {
			return manifest.Manifest{}, err
		}
		chunkList = append(chunkList, sealed.ChunkHash)
	}

	prevVersion, err := p.latestVersion(manifestID)
	if err != nil {
		return manifest.Manifest{}, err
	}

	m := manifest.Manifest{
		ManifestID:      manifestID,
		Version:         ingestTime.UTC().Format("20060102T150405.000000000Z"),
		SequenceTime:    ingestTime,
		TaxonomyTime:    taxonomyTime,
		PreviousVersion: prevVersion,
		ChunkList:       chunkList,
		Metadata:        map[string]string{"delta_estimator": "kmer12"},
	}.Seal()

	manifestOp, err := p.manifests.PutOp(m)
	if err != nil {
		return manifest.Manifest{}, err
	}
	temporalOp, err := p.temporalI.RecordOp(manifestID, temporal.Coordinate{SequenceTime: ingestTime, TaxonomyTime: taxonomyTime}, m.MerkleRoot)
	if err != nil {
		return manifest.Manifest{}, err
	}
	ops := append(merkledag.PutOps(manifest.Fanout, m.ChunkList), manifestOp, temporalOp)
	if err := p.db.PutBatch(ops); err != nil {
		return manifest.Manifest{}, err
	}
	return m, nil
}

// sealGroup builds one chunk from group: its longest ReferenceK members are
// stored whole as delta references, every other member is delta-encoded
// against whichever candidate scores best, falling back to whole storage
// when no candidate is similar enough.
func (p *Pipeline) sealGroup(group chunk.Group, createdAt time.Time) (chunk.Chunk, []kvstore.Op, error) {
	candidates := group.ReferenceCandidates(p.cfg.ChunkConfig.ReferenceK)
	candidateSet := make(map[hashcodec.Hash]struct{}, len(candidates))
	candidateBytes := make([][]byte, len(candidates))
	for i, c := range candidates {
		b, err := p.sequences.GetSequence(c.Hash)
		if err != nil {
			return chunk.Chunk{}, nil, err
		}
		candidateBytes[i] = b
		candidateSet[c.Hash] = struct{}{}
	}

	var sequenceRefs []hashcodec.Hash
	for _, c := range candidates {
		sequenceRefs = append(sequenceRefs, c.Hash)
	}

	var deltaRefs []chunk.DeltaRef
	var ops []kvstore.Op
	for _, rec := range group.Records {
		if _, isCandidate := candidateSet[rec.Hash]; isCandidate {
			continue
		}
		target, err := p.sequences.GetSequence(rec.Hash)
		if err != nil {
			return chunk.Chunk{}, nil, err
		}
		best, ok := delta.ChooseReference(target, candidateBytes, p.cfg.SimilarityThreshold)
		if !ok {
			sequenceRefs = append(sequenceRefs, rec.Hash)
			continue
		}
		refHash, found := hashOf(candidates, candidateBytes, best)
		if !found {
			return chunk.Chunk{}, nil, fmt.Errorf("ingest: chosen reference not among candidates for %s", rec.Hash)
		}
		deltaOps := delta.Encode(best, target)
		deltaOp, payloadHash, err := p.deltas.PutOp(deltaOps)
		if err != nil {
			return chunk.Chunk{}, nil, err
		}
		ops = append(ops, deltaOp, delta.IndexOp(rec.Hash, delta.IndexEntry{ReferenceHash: refHash, DeltaPayloadHash: payloadHash}))
		deltaRefs = append(deltaRefs, chunk.DeltaRef{TargetHash: rec.Hash, ReferenceHash: refHash, DeltaPayloadHash: payloadHash})
	}

	kind := chunk.KindReferenceOnly
	switch {
	case len(deltaRefs) == 0:
		kind = chunk.KindReferenceOnly
	case len(sequenceRefs) == len(candidates):
		kind = chunk.KindDelta
	default:
		kind = chunk.KindHybrid
	}

	c := chunk.Chunk{
		Kind:         kind,
		SequenceRefs: sequenceRefs,
		DeltaRefs:    deltaRefs,
		TaxonScope:   group.TaxonScope,
		CreatedAt:    createdAt,
	}.Sealed()

	chunkOp, err := p.chunks.PutOp(c)
	if err != nil {
		return chunk.Chunk{}, nil, err
	}
	ops = append(ops, chunkOp)
	return c, ops, nil
}

func hashOf(candidates []chunk.Record, candidateBytes [][]byte, chosen []byte) (hashcodec.Hash, bool) {
	for i, b := range candidateBytes {
		if string(b) == string(chosen) {
			return candidates[i].Hash, true
		}
	}
	return hashcodec.Hash{}, false
}

func (p *Pipeline) latestVersion(manifestID string) (string, error) {
	versions, err := p.manifests.Versions(manifestID)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", nil
	}
	sort.Strings(versions)
	return versions[len(versions)-1], nil
}
