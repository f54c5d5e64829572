// Package normalisers provides implementations of the Normaliser interface
// for the document formats a handbook is published in. Each normaliser
// knows how to extract text content from a specific MIME type.
//
// Normalisers are registered with a Registry at startup; NewDefaultRegistry
// returns one holding every built-in normaliser.
package normalisers
