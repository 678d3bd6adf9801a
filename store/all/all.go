// Package all registers every blob-store backend with package store.
// Import it for its side effects:
//
//   import _ "github.com/bobg/ethbs/store/all"
package all

import (
	_ "github.com/bobg/ethbs/store/bt"
	_ "github.com/bobg/ethbs/store/file"
	_ "github.com/bobg/ethbs/store/gcs"
	_ "github.com/bobg/ethbs/store/leveldb"
	_ "github.com/bobg/ethbs/store/logging"
	_ "github.com/bobg/ethbs/store/lru"
	_ "github.com/bobg/ethbs/store/mem"
	_ "github.com/bobg/ethbs/store/pg"
	_ "github.com/bobg/ethbs/store/replica"
	_ "github.com/bobg/ethbs/store/rpc"
	_ "github.com/bobg/ethbs/store/sqlite3"
)
