// Package store provides the kdtree index file format and a read-only
// mmap-backed view of index files. It is used by kdtree.SaveTo, kdtree.LoadFrom
// and kdtree.OpenIndex.
//
// The file format consists of:
//   - Header (64 bytes): magic, version, storage kind, geometry, flags, sizes, scale
//   - Section table: (offset, length) pairs, one per Section
//   - Sections: little-endian arrays, the first starting on a 4 KiB page and
//     every section aligned to 64 bytes
package store
