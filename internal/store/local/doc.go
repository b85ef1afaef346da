// Package local is a filesystem-backed workspace store for offline and
// development use. Several processes can share one directory; live queries
// follow appends made by any of them.
package local

import "github.com/user/wschat/internal/types"

// Compile-time interface compliance checks.
var _ types.Backend = (*Store)(nil)
