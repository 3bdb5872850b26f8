// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed seals archive volumes with age (X25519) so they can
// cross untrusted storage or networks.
//
// Sealing is streaming: [Encrypt] wraps a writer and [Decrypt] wraps
// a reader, and age's 64 KiB authenticated chunks keep memory use flat
// no matter how large a volume is. A volume may be sealed to several
// recipients; any one matching identity opens it.
//
// [GenerateKeypair] backs the keygen command. Identity files use age's
// own format, so keys made by the age CLI work here too.
package sealed
