// Package kdtree provides a static, array-backed k-d tree for nearest-neighbour
// and radius queries over fixed point sets in low dimension.
//
// Quick start:
//
//	cfg := kdtree.DefaultConfig()
//	cfg.LeafSize = 8
//	tree, err := kdtree.Build[uint16](points, 2, cfg) // quantized 16-bit storage
//	res, err := tree.RangeSearch(query, 0.01, kdtree.RangeOptions{SortByDistance: true})
//	nb, err := tree.Nearest(query, 0)
//
// The tree is an implicit complete binary tree: node i has children 2i+1 and
// 2i+2, leaves own contiguous runs of the reordered point array, and only the
// right bound of each leaf is stored. Storage may be float64, float32 or a
// quantized uint32/uint16 representation; queries always take and return
// float64 coordinates and squared distances.
//
// A built tree is immutable and safe for concurrent queries. Trees can be
// saved to a single page-aligned file and loaded back with zero-copy mmap
// (see SaveTo and NewTreeFromFile).
package kdtree
