package policy

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// hashRing is a sorted mapping from 64-bit hash key to worker URL.
// Each physical worker contributes VirtualNodes points (spec.md §3).
// It is immutable once built; the owning policy rebuilds and swaps it
// under its own lock when the worker set changes.
type hashRing struct {
	points    []ringPoint
	signature string
}

type ringPoint struct {
	hash uint64
	url  string
}

// buildRing hashes virtualNodes points per URL and sorts them. Using
// xxhash64 (spec.md §4.2 names it explicitly) over "<url>#<n>" gives a
// stable, well-distributed point set without needing a second hash
// function for disambiguation.
func buildRing(urls []string, virtualNodes int) *hashRing {
	points := make([]ringPoint, 0, len(urls)*virtualNodes)
	for _, u := range urls {
		for i := 0; i < virtualNodes; i++ {
			key := u + "#" + strconv.Itoa(i)
			points = append(points, ringPoint{hash: hashKey(key), url: u})
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].hash < points[j].hash })
	return &hashRing{points: points, signature: ringSignature(urls)}
}

// lookup finds the first ring point at or after hash, wrapping to the
// first point on miss, and returns its worker URL. Returns "" if the
// ring has no points.
func (r *hashRing) lookup(hash uint64) string {
	if len(r.points) == 0 {
		return ""
	}
	i := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= hash })
	if i == len(r.points) {
		i = 0
	}
	return r.points[i].url
}

// walk returns the URLs starting at hash's ring position and
// proceeding clockwise, covering every distinct URL exactly once, for
// fallback when the first hit is unselectable.
func (r *hashRing) walk(hash uint64) []string {
	if len(r.points) == 0 {
		return nil
	}
	start := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= hash })
	seen := make(map[string]bool, len(r.points))
	out := make([]string, 0, len(r.points))
	for i := 0; i < len(r.points); i++ {
		p := r.points[(start+i)%len(r.points)]
		if !seen[p.url] {
			seen[p.url] = true
			out = append(out, p.url)
		}
	}
	return out
}

func hashKey(s string) uint64 {
	return xxhash.Sum64String(s)
}

func ringSignature(urls []string) string {
	sorted := make([]string, len(urls))
	copy(sorted, urls)
	sort.Strings(sorted)
	sig := ""
	for _, u := range sorted {
		sig += u + "\x00"
	}
	return sig
}
