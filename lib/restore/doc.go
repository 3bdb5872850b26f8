// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package restore reconstructs a dataset tree from a volume set.
//
// [Restore] refuses an incomplete set, reads the manifest, and builds
// the path mapping table from logical paths to absolute paths under
// the destination. One worker per volume then streams its entries:
// each blob is decoded once and written to every logical path that
// names it, and each metafile has its media references rewritten from
// logical form to absolute destination paths. All decoded content is
// fingerprinted and compared with the recorded value. Finally a
// dataset_config.yaml catalog with absolute MetaFiles paths is written
// at the destination root.
package restore
