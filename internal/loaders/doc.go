// Package loaders reads handbook documents from local storage and hands
// them to the ingestion pipeline as raw documents.
//
//   - filesystem walks a directory tree and watches it for changes
//   - jsonl reads the document export written by the handbook scraper
//
// Loaders do not interpret content; normalisers do.
package loaders
