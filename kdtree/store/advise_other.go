//go:build !unix

package store

func adviseRandom([]byte) error { return nil }
