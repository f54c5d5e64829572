// Package vectorindex contains driven.VectorIndex implementations.
//
//   - flat: exact in-memory scan with copy-on-write publication
//   - pgvector: Postgres with the pgvector extension
package vectorindex
