//go:build unix

package store

import "golang.org/x/sys/unix"

// adviseRandom tells the kernel that tree traversal touches pages out of order.
func adviseRandom(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	err := unix.Madvise(b, unix.MADV_RANDOM)
	if err == unix.EINVAL {
		return nil
	}
	return err
}
