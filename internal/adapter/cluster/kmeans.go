package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"smartindex/internal/adapter/memstore"
)

const maxIterations = 100

// KMeans partitions vectors into at most k groups and returns the group of
// each vector. Seeding is k-means++ from a PCG source, so the same input and
// seed always give the same assignment. k is lowered to len(vectors).
func KMeans(vectors [][]float32, k int, seed uint64) ([]int, error) {
	if k <= 0 {
		return nil, fmt.Errorf("cluster count must be positive, got %d", k)
	}
	if len(vectors) == 0 {
		return []int{}, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	if k > len(vectors) {
		k = len(vectors)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	centroids := seedPlusPlus(vectors, k, rng)
	assign := make([]int, len(vectors))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearest(v, centroids)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		recompute(vectors, assign, centroids)
	}
	return assign, nil
}

func seedPlusPlus(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	first := vectors[rng.IntN(len(vectors))]
	centroids = append(centroids, append([]float32(nil), first...))

	dist := make([]float64, len(vectors))
	for len(centroids) < k {
		var total float64
		for i, v := range vectors {
			d := memstore.SquaredL2(v, centroids[0])
			for _, c := range centroids[1:] {
				if dc := memstore.SquaredL2(v, c); dc < d {
					d = dc
				}
			}
			dist[i] = d
			total += d
		}

		next := 0
		if total == 0 {
			// Every point coincides with a centroid; fall back to uniform.
			next = rng.IntN(len(vectors))
		} else {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
				next = i
			}
		}
		centroids = append(centroids, append([]float32(nil), vectors[next]...))
	}
	return centroids
}

func nearest(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := math.Inf(1)
	for j, c := range centroids {
		if d := memstore.SquaredL2(v, c); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// recompute moves each centroid to the mean of its members. Empty groups
// keep their previous centroid.
func recompute(vectors [][]float32, assign []int, centroids [][]float32) {
	dim := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	for i, v := range vectors {
		j := assign[i]
		counts[j]++
		for d, x := range v {
			sums[j][d] += float64(x)
		}
	}
	for j := range centroids {
		if counts[j] == 0 {
			continue
		}
		for d := range centroids[j] {
			centroids[j][d] = float32(sums[j][d] / float64(counts[j]))
		}
	}
}

// ErrNoVectors is returned by Groups when there is nothing to cluster.
var ErrNoVectors = errors.New("no vectors to cluster")

// Groups clusters ids by their vectors and returns id → group.
func Groups(ids []string, vectors [][]float32, k int, seed uint64) (map[string]int, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("got %d ids for %d vectors", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil, ErrNoVectors
	}
	assign, err := KMeans(vectors, k, seed)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(ids))
	for i, id := range ids {
		out[id] = assign[i]
	}
	return out, nil
}
