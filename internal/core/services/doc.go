// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Retrieval, prompt assembly and answering serve queries. Ingestion and
// the index lifecycle write to the shared vector index. Services are pure
// Go with no CGO; ingestion uses a bounded worker pool, a rate limiter and
// retry backoff for embedding calls.
package services
