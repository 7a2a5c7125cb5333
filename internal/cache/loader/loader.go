// Package loader registers all built-in cache drivers.
//
// Import for side effects:
//
//	import _ "github.com/docmesh/sharekit/internal/cache/loader"
package loader

import (
	_ "github.com/docmesh/sharekit/internal/cache/memory"
	_ "github.com/docmesh/sharekit/internal/cache/sqlite"
)
