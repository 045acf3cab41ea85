// Package gen 提供压测用随机点集生成
package gen

import "math/rand"

// RandomPoints 生成 n 个 dim 维点（行优先展开），坐标在 [0, scale) 内均匀分布
func RandomPoints(n, dim int, scale float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n*dim)
	for i := range out {
		out[i] = rng.Float64() * scale
	}
	return out
}

// ClusteredPoints 生成围绕 k 个中心的高斯簇点集，sigma 为簇内标准差；
// 重复坐标和密集区域用于检验中位数切分与剪枝
func ClusteredPoints(n, dim, k int, scale, sigma float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	if k <= 0 {
		k = 1
	}
	centers := RandomPoints(k, dim, scale, seed+1)
	out := make([]float64, n*dim)
	for i := 0; i < n; i++ {
		c := rng.Intn(k)
		for d := 0; d < dim; d++ {
			out[i*dim+d] = centers[c*dim+d] + rng.NormFloat64()*sigma
		}
	}
	return out
}

// Queries 从 data 中抽取 m 个点并加上小扰动作为查询点
func Queries(data []float64, dim, m int, jitter float64, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	n := len(data) / dim
	out := make([][]float64, m)
	for i := range out {
		p := rng.Intn(n)
		q := make([]float64, dim)
		for d := range q {
			q[d] = data[p*dim+d] + (rng.Float64()*2-1)*jitter
		}
		out[i] = q
	}
	return out
}
