package delta

// estimatorKmerSize is the shared-k-mer estimator's k. Recorded in
// manifest metadata as delta_estimator=kmer12 so re-creating a manifest
// from the same input reproduces identical chunks.
const estimatorKmerSize = 12

// DefaultSimilarityThreshold is the fraction of |target| that the
// estimated delta size must stay under for encoding against a reference to
// be worthwhile; above it, the target is stored whole.
const DefaultSimilarityThreshold = 2.0 / 3.0

// ChooseReference scores every candidate by shared 12-mer count against
// target and returns the best one, or ok=false when even the best
// candidate's estimated delta size exceeds threshold*|target| (the target
// should be stored whole instead).
func ChooseReference(target []byte, candidates [][]byte, threshold float64) (best []byte, ok bool) {
	if len(target) == 0 || len(candidates) == 0 {
		return nil, false
	}
	targetKmers := kmerSet(target, estimatorKmerSize)
	if len(targetKmers) == 0 {
		return nil, false
	}

	bestShared := -1
	bestIdx := -1
	for i, cand := range candidates {
		shared := countShared(targetKmers, cand, estimatorKmerSize)
		if shared > bestShared {
			bestShared, bestIdx = shared, i
		}
	}
	if bestIdx == -1 {
		return nil, false
	}

	estimatedMatched := bestShared * estimatorKmerSize
	if estimatedMatched > len(target) {
		estimatedMatched = len(target)
	}
	estimatedDeltaSize := len(target) - estimatedMatched
	if float64(estimatedDeltaSize) > threshold*float64(len(target)) {
		return nil, false
	}
	return candidates[bestIdx], true
}

func kmerSet(b []byte, k int) map[string]struct{} {
	set := map[string]struct{}{}
	if len(b) < k {
		return set
	}
	for i := 0; i+k <= len(b); i++ {
		set[string(b[i:i+k])] = struct{}{}
	}
	return set
}

func countShared(targetKmers map[string]struct{}, candidate []byte, k int) int {
	if len(candidate) < k {
		return 0
	}
	seen := map[string]struct{}{}
	count := 0
	for i := 0; i+k <= len(candidate); i++ {
		key := string(candidate[i : i+k])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := targetKmers[key]; ok {
			count++
		}
	}
	return count
}
