package chunk

import (
	"sort"
	"strings"

	"github.com/seqdag/seqdag/hashcodec"
)

// Record is one canonical sequence's chunking metadata: its hash, its full
// taxonomic lineage from root to leaf (e.g. ["Eukaryota", "Chordata",
// "9606"]), its accession (used only as a deterministic tie-breaker), and
// its normalized byte length.
type Record struct {
	Hash      hashcodec.Hash
	TaxonPath []string
	Accession string
	Length    int
}

// Config fixes the chunker's tunables. The soft/hard/minimum thresholds and
// ReferenceK are not recorded in manifest metadata; ingest records only
// delta_estimator there.
type Config struct {
	SoftSizeBytes int // target chunk size; groups are split rather than merged past it
	HardCapCount  int // absolute max sequences per chunk
	MinGroupCount int // groups smaller than this merge into their parent taxon
	ReferenceK    int // longest K sequences per chunk nominated as delta references
}

func DefaultConfig() Config {
	return Config{
		SoftSizeBytes: 64 << 20, // 64 MiB
		HardCapCount:  50_000,
		MinGroupCount: 64,
		ReferenceK:    4,
	}
}

// Group is one taxonomically coherent partition prior to sealing into a
// Chunk: the chunker's intermediate, inspectable output.
type Group struct {
	TaxonScope []string // leaf taxon ids present, sorted
	Records    []Record // sorted by Length descending, then Accession
}

// Partition groups records deterministically: group by each record's full
// taxon path, merge groups under MinGroupCount up into their parent taxon,
// then split any group over HardCapCount or SoftSizeBytes by accession lex
// order. Same input stream in the same order always yields the same
// partition.
func Partition(records []Record, cfg Config) []Group {
	byPath := map[string][]Record{}
	var order []string
	for _, r := range records {
		key := strings.Join(r.TaxonPath, "\x00")
		if _, seen := byPath[key]; !seen {
			order = append(order, key)
		}
		byPath[key] = append(byPath[key], r)
	}

	groups := make(map[string][]Record, len(byPath))
	for _, k := range order {
		groups[k] = byPath[k]
	}

	mergeSmallGroups(groups, cfg.MinGroupCount)

	var out []Group
	var keys []string
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, sub := range subdivide(groups[k], cfg) {
			out = append(out, buildGroup(sub))
		}
	}
	return out
}

// mergeSmallGroups repeatedly folds any group below minCount into its
// parent taxon path (one path element shorter), in deterministic
// shortest-key-last order, until every remaining group meets the minimum
// or has been folded all the way to the root.
func mergeSmallGroups(groups map[string][]Record, minCount int) {
	if minCount <= 0 {
		return
	}
	for {
		var smallest string
		smallestLen := -1
		for k, recs := range groups {
			if len(recs) >= minCount {
				continue
			}
			depth := strings.Count(k, "\x00")
			if smallestLen == -1 || depth > smallestLen || (depth == smallestLen && k < smallest) {
				smallest, smallestLen = k, depth
			}
		}
		if smallestLen <= 0 {
			return // nothing undersized, or only root-level groups remain
		}
		parts := strings.Split(smallest, "\x00")
		parentKey := strings.Join(parts[:len(parts)-1], "\x00")
		groups[parentKey] = append(groups[parentKey], groups[smallest]...)
		delete(groups, smallest)
	}
}

// subdivide splits recs, ordered by accession lex order (the documented
// deterministic tie-break), into slices that respect both HardCapCount and
// SoftSizeBytes: a new slice starts whenever adding the next record would
// cross either bound, never splitting a single record across slices.
func subdivide(recs []Record, cfg Config) [][]Record {
	totalBytes := 0
	for _, r := range recs {
		totalBytes += r.Length
	}
	underHardCap := cfg.HardCapCount <= 0 || len(recs) <= cfg.HardCapCount
	underSoftSize := cfg.SoftSizeBytes <= 0 || totalBytes <= cfg.SoftSizeBytes
	if underHardCap && underSoftSize {
		return [][]Record{recs}
	}

	sorted := append([]Record(nil), recs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Accession < sorted[j].Accession })

	var out [][]Record
	var cur []Record
	curBytes := 0
	for _, r := range sorted {
		exceedsCount := cfg.HardCapCount > 0 && len(cur)+1 > cfg.HardCapCount
		exceedsSize := cfg.SoftSizeBytes > 0 && len(cur) > 0 && curBytes+r.Length > cfg.SoftSizeBytes
		if (exceedsCount || exceedsSize) && len(cur) > 0 {
			out = append(out, cur)
			cur = nil
			curBytes = 0
		}
		cur = append(cur, r)
		curBytes += r.Length
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func buildGroup(recs []Record) Group {
	sorted := append([]Record(nil), recs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Length != sorted[j].Length {
			return sorted[i].Length > sorted[j].Length
		}
		return sorted[i].Accession < sorted[j].Accession
	})
	scopeSet := map[string]struct{}{}
	for _, r := range sorted {
		if len(r.TaxonPath) > 0 {
			scopeSet[r.TaxonPath[len(r.TaxonPath)-1]] = struct{}{}
		}
	}
	scope := make([]string, 0, len(scopeSet))
	for t := range scopeSet {
		scope = append(scope, t)
	}
	sort.Strings(scope)
	return Group{TaxonScope: scope, Records: sorted}
}

// ReferenceCandidates returns the longest K records in g, the nomination
// the delta engine chooses among.
func (g Group) ReferenceCandidates(k int) []Record {
	if k > len(g.Records) {
		k = len(g.Records)
	}
	return g.Records[:k]
}
