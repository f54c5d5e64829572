package domain

import "time"

// RawDocument is what a loader hands to the normalisers: the file bytes
// plus whatever the loader learned about them.
type RawDocument struct {
	ID         string // relative slash path, or the export record id
	URI        string // where the bytes came from
	MIMEType   string
	Content    []byte
	ModifiedAt time.Time

	// Metadata may carry title, section and source_url hints that
	// normalisers prefer over what they infer from the content.
	Metadata map[string]any
}

// ChangeType classifies a watched file event.
type ChangeType int

const (
	ChangeCreated ChangeType = iota
	ChangeUpdated
	ChangeDeleted
)

var changeNames = [...]string{
	ChangeCreated: "created",
	ChangeUpdated: "updated",
	ChangeDeleted: "deleted",
}

func (c ChangeType) String() string {
	if c < 0 || int(c) >= len(changeNames) {
		return unknownDescription
	}
	return changeNames[c]
}

// RawDocumentChange is one event from a watching loader. Deletions only
// carry Document.ID and Document.URI.
type RawDocumentChange struct {
	Type     ChangeType
	Document RawDocument
}
