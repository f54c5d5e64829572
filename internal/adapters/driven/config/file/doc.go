// Package file keeps user-editable settings and prompt templates on disk.
//
// ConfigStore reads and writes config.toml, flattening its tables into
// dotted keys such as "retrieval.top_k". Writes go to a temp file that is
// renamed into place.
//
// PromptStore serves templates from the prompts directory, seeding it from
// the embedded defaults on first use. A template is re-read whenever its
// modification time or size changes.
package file
