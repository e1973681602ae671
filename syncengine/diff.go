// Package syncengine implements comparing two manifests and driving
// the fetch of whatever chunks the remote has that the local store lacks.
package syncengine

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/seqdag/seqdag/chunk"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/manifest"
)

// Diff returns the set-difference between two manifests' chunk lists:
// needed holds chunks remote has that local lacks, removed holds chunks
// local has that remote no longer references. Diff(m, m) always returns
// two empty sets.
func Diff(local, remote manifest.Manifest) (needed, removed []hashcodec.Hash) {
	localSet := toSet(local.ChunkList)
	remoteSet := toSet(remote.ChunkList)
	for _, h := range remote.ChunkList {
		if _, ok := localSet[h]; !ok {
			needed = append(needed, h)
		}
	}
	for _, h := range local.ChunkList {
		if _, ok := remoteSet[h]; !ok {
			removed = append(removed, h)
		}
	}
	return needed, removed
}

func toSet(hashes []hashcodec.Hash) map[hashcodec.Hash]struct{} {
	set := make(map[hashcodec.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return set
}

// PlanFetch orders needed chunks so that a delta chunk is fetched after any
// other needed chunk that supplies the canonical sequence it deltas
// against. chunks must contain an entry for every hash in
// needed. Whenever several chunks have no unplaced dependency, the one with
// the smallest hash is placed next, so the order is deterministic.
func PlanFetch(needed []hashcodec.Hash, chunks map[hashcodec.Hash]chunk.Chunk) ([]hashcodec.Hash, error) {
	provides := map[hashcodec.Hash]hashcodec.Hash{} // sequence/payload hash -> providing chunk hash
	for _, h := range needed {
		c, ok := chunks[h]
		if !ok {
			return nil, fmt.Errorf("syncengine: no chunk record for needed hash %s", h)
		}
		for _, ref := range c.SequenceRefs {
			provides[ref] = h
		}
		for _, dr := range c.DeltaRefs {
			provides[dr.TargetHash] = h
		}
	}

	deps := make(map[hashcodec.Hash][]hashcodec.Hash, len(needed)) // chunk -> chunks it must follow
	indegree := make(map[hashcodec.Hash]int, len(needed))
	for _, h := range needed {
		indegree[h] = 0
	}
	for _, h := range needed {
		c := chunks[h]
		seen := map[hashcodec.Hash]struct{}{}
		for _, dr := range c.DeltaRefs {
			provider, ok := provides[dr.ReferenceHash]
			if !ok || provider == h {
				continue
			}
			if _, dup := seen[provider]; dup {
				continue
			}
			seen[provider] = struct{}{}
			deps[h] = append(deps[h], provider)
			indegree[h]++
		}
	}

	var ready []hashcodec.Hash
	for _, h := range needed {
		if indegree[h] == 0 {
			ready = append(ready, h)
		}
	}
	sortHashes(ready)

	dependents := map[hashcodec.Hash][]hashcodec.Hash{}
	for h, ds := range deps {
		for _, d := range ds {
			dependents[d] = append(dependents[d], h)
		}
	}

	var order []hashcodec.Hash
	for len(ready) > 0 {
		sortHashes(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if len(order) != len(needed) {
		return nil, fmt.Errorf("syncengine: cyclic chunk dependency detected among %d needed chunks", len(needed))
	}
	return order, nil
}

func sortHashes(hs []hashcodec.Hash) {
	sort.Slice(hs, func(i, j int) bool { return bytes.Compare(hs[i][:], hs[j][:]) < 0 })
}
