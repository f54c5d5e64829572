package driven

// PromptStore serves the templates the prompt service fills in.
type PromptStore interface {
	// Load returns the template for name. Unknown names are an error;
	// known ones always resolve, falling back to a built-in default.
	Load(name string) (string, error)

	// Reload drops cached templates so the next Load reads them again.
	Reload()
}

// Template names. {{context}} receives the numbered excerpts and
// {{question}} the user's question.
const (
	// PromptAnswer frames the retrieved excerpts. Needs both placeholders.
	PromptAnswer = "answer"

	// PromptNoContext is used when nothing relevant was retrieved.
	// Needs {{question}}.
	PromptNoContext = "no_context"
)
