// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package restore

import "golang.org/x/sys/unix"

// freeSpace returns the bytes available to unprivileged users on the
// filesystem holding path.
func freeSpace(path string) (int64, bool, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, false, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), true, nil
}
