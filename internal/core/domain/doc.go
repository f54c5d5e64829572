// Package domain holds the types every other layer of the handbook engine
// speaks: documents and their chunks, index entries, retrieval results,
// settings, and the sentinel errors adapters wrap.
//
// Nothing here imports outside the standard library. Loaders produce a
// RawDocument, normalisers turn it into a Document, the chunker splits that
// into Chunks, and the index stores one IndexEntry per chunk. A query comes
// back as a RetrievalResult whose Items carry the chunk text and score.
package domain
