// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the datapack pipeline configuration.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the DATAPACK_CONFIG environment variable (via
// [Load]). There is no discovery and no search path. Command-line
// flags override file values; nothing else does.
//
// The file is YAML, decoded in known-fields mode so a misspelled key
// is an error rather than a silently ignored option. Files ending in
// .json or .jsonc are accepted too: comments and trailing commas are
// stripped first, and since JSON is a subset of YAML the result goes
// through the same decoder.
//
//	datasets:
//	  - name: chartqa
//	    root: ${HOME}/data/chartqa
//	    long_cot: true
//	catalog: ./dataset_config.yaml
//	archive:
//	  output: /exports
//	  max_volume_size: 2GiB
//	  dedup_kinds: [image, video]
//	split:
//	  max_samples: 500
//
// Path fields expand ${VAR} and ${VAR:-default} (HOME and
// DATAPACK_CONFIG_DIR are always defined) and resolve relative to the
// config file's directory. Sizes accept integers or humanized strings.
//
// [Config.Validate] reports every invalid option as a *[ConfigError];
// library packages return the same type for invalid options passed
// directly.
package config
