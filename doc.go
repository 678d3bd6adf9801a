// Package ethbs mirrors Ethereum block headers into a content-addressable blob store.
//
// Each block header seen on the chain is RLP-encoded as the chain itself encodes it
// and stored under a content identifier,
// or _CID_,
// derived from its keccak-256 hash,
// which is the block's own hash.
// Because the key is computed from the header’s content,
// any node holding the same header stores it under the same CID,
// and anyone holding a CID can verify the bytes they get back.
//
// On top of the store sits a small client:
// an in-memory state aggregate that subscribers can watch
// (package state),
// a loop that ingests new blocks from an external block tracker
// (package ingest),
// and a builder that turns a human-written "pseudo-query" such as
//
//   /eth/latest/state/0x52bc44d5378309ee2abf1539bf71de1b7d7be3b5/balance
//
// into a path rooted at the CID of the best known block
// (package query).
// Package bridge ties these together into a single context object.
//
// Blob stores come in several flavors
// (memory, files, sqlite, postgresql, leveldb, Google Cloud Storage, Bigtable,
// a remote gRPC server, and replicated or logging wrappers around the others),
// selected at runtime through the registry in package store.
package ethbs
