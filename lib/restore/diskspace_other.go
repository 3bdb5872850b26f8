// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package restore

func freeSpace(string) (int64, bool, error) {
	return 0, false, nil
}
