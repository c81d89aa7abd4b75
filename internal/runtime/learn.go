package runtime

import (
	"math"

	"github.com/dop251/goja"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// learnModule holds small supervised-learning helpers.
type learnModule struct{}

func (learnModule) Name() string  { return "learn" }
func (learnModule) Alias() string { return "" }

func (learnModule) Load(e *Env) (goja.Value, error) {
	return e.object(map[string]any{
		"linearRegression": func(call goja.FunctionCall) goja.Value {
			x, y := e.floats(call.Argument(0)), e.floats(call.Argument(1))
			if len(x) != len(y) {
				e.throw("learn.linearRegression: x has %d values, y has %d", len(x), len(y))
			}
			x, y, _ = dropMissingPoints(x, y, nil)
			if len(x) < 2 {
				e.throw("learn.linearRegression requires at least 2 points")
			}
			intercept, slope := stat.LinearRegression(x, y, nil, false)
			r2 := stat.RSquared(x, y, nil, intercept, slope)
			model := e.VM.NewObject()
			_ = model.Set("slope", slope)
			_ = model.Set("intercept", intercept)
			_ = model.Set("r2", r2)
			_ = model.Set("predict", func(call goja.FunctionCall) goja.Value {
				arg := call.Argument(0)
				if !isArrayLike(arg) {
					return e.numberValue(intercept + slope*arg.ToFloat())
				}
				xs := e.floats(arg)
				out := make([]float64, len(xs))
				for i, v := range xs {
					out[i] = intercept + slope*v
				}
				return e.floatsValue(out)
			})
			return model
		},
		"standardize": func(call goja.FunctionCall) goja.Value {
			xs := e.floats(call.Argument(0))
			clean := dropNaN(xs)
			if len(clean) == 0 {
				return e.floatsValue(xs)
			}
			mean, std := stat.Mean(clean, nil), stat.PopStdDev(clean, nil)
			out := make([]float64, len(xs))
			for i, v := range xs {
				if std == 0 {
					out[i] = 0
					continue
				}
				out[i] = stat.StdScore(v, mean, std)
			}
			return e.floatsValue(out)
		},
	}), nil
}

// clusterModule provides k-means clustering over points given as an array
// of number arrays: kmeans(points, k[, iterations]).
type clusterModule struct{}

func (clusterModule) Name() string  { return "cluster" }
func (clusterModule) Alias() string { return "" }

const kmeansMaxIter = 100

func (clusterModule) Load(e *Env) (goja.Value, error) {
	return e.object(map[string]any{
		"kmeans": func(call goja.FunctionCall) goja.Value {
			rows := e.elements(call.Argument(0))
			k := intArg(call, 1, 2)
			points := make([][]float64, len(rows))
			for i, r := range rows {
				points[i] = e.floats(r)
				if i > 0 && len(points[i]) != len(points[0]) {
					e.throw("cluster.kmeans: point %d has %d dimensions, expected %d", i, len(points[i]), len(points[0]))
				}
			}
			if k < 1 || k > len(points) {
				e.throw("cluster.kmeans: k must be between 1 and %d, got %d", len(points), k)
			}
			iters := intArg(call, 2, kmeansMaxIter)
			if iters < 1 {
				e.throw("cluster.kmeans: iterations must be >= 1, got %d", iters)
			}
			res := kmeans(points, k, iters)

			centroids := make([]any, len(res.centroids))
			for i, c := range res.centroids {
				centroids[i] = e.floatsValue(c)
			}
			labels := make([]any, len(res.labels))
			for i, l := range res.labels {
				labels[i] = l
			}
			obj := e.VM.NewObject()
			_ = obj.Set("labels", e.VM.NewArray(labels...))
			_ = obj.Set("centroids", e.VM.NewArray(centroids...))
			_ = obj.Set("inertia", res.inertia)
			return obj
		},
	}), nil
}

type kmeansResult struct {
	labels    []int
	centroids [][]float64
	inertia   float64
}

// kmeans runs Lloyd's algorithm with farthest-point seeding starting from
// the first point, so results are deterministic.
func kmeans(points [][]float64, k, maxIter int) kmeansResult {
	centroids := [][]float64{append([]float64(nil), points[0]...)}
	for len(centroids) < k {
		best, bestDist := 0, -1.0
		for i, p := range points {
			d := nearestDist(p, centroids)
			if d > bestDist {
				best, bestDist = i, d
			}
		}
		centroids = append(centroids, append([]float64(nil), points[best]...))
	}

	labels := make([]int, len(points))
	for iter := 0; iter < maxIter; iter++ {
		changed := iter == 0
		for i, p := range points {
			c := nearest(p, centroids)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		dim := len(points[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			centroids[c] = sums[c]
		}
	}

	var inertia float64
	for i, p := range points {
		d := floats.Distance(p, centroids[labels[i]], 2)
		inertia += d * d
	}
	return kmeansResult{labels: labels, centroids: centroids, inertia: inertia}
}

func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(p, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func nearestDist(p []float64, centroids [][]float64) float64 {
	return floats.Distance(p, centroids[nearest(p, centroids)], 2)
}
