// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the engine to function:
//
//   - Embedder: Turns text into fixed-length vectors
//   - VectorIndex: Stores vectors and answers nearest-neighbour queries
//   - DocumentStore: Document and chunk text persistence (side lookup)
//   - IndexStore: Persisted index snapshots
//   - PostProcessorPipeline: Splits documents into chunks
//   - NormaliserRegistry: Turns raw loader output into documents
//   - ConfigStore: Application configuration
//   - PromptStore: Prompt templates
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - Generator: Writes answers from assembled prompts. Without it only
//     the prompt is returned.
//   - EmbeddingCache: Caches embeddings across runs.
package driven
