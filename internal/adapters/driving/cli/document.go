package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

var documentJSON bool

var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"doc", "docs"},
	Short:   "Inspect or remove ingested documents",
}

var (
	documentListCmd = &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE:  runDocumentList,
	}
	documentGetCmd = &cobra.Command{
		Use:   "get <doc-id>",
		Short: "Show what is stored about a document",
		Args:  cobra.ExactArgs(1),
		RunE:  runDocumentGet,
	}
	documentContentCmd = &cobra.Command{
		Use:   "content <doc-id>",
		Short: "Print the normalised text of a document",
		Args:  cobra.ExactArgs(1),
		RunE:  runDocumentContent,
	}
	documentChunksCmd = &cobra.Command{
		Use:   "chunks <doc-id>",
		Short: "Print a document's chunks in order",
		Args:  cobra.ExactArgs(1),
		RunE:  runDocumentChunks,
	}
	documentDeleteCmd = &cobra.Command{
		Use:   "delete <doc-id>",
		Short: "Drop a document and its chunks from the store and the index",
		Long: `Drop a document and its chunks from the store and the index.

The file itself is untouched; ingesting it again brings it back.`,
		Args: cobra.ExactArgs(1),
		RunE: runDocumentDelete,
	}
)

func init() {
	documentListCmd.Flags().BoolVar(&documentJSON, "json", false, "print documents as JSON")
	documentChunksCmd.Flags().BoolVar(&documentJSON, "json", false, "print chunks as JSON")

	documentCmd.AddCommand(documentListCmd, documentGetCmd, documentContentCmd, documentChunksCmd, documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

var errNoDocuments = errors.New("document service not configured")

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errNoDocuments
	}
	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if documentJSON {
		return outputJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No documents ingested.")
		return nil
	}

	styles := stylesFor(cmd.OutOrStdout())
	cmd.Println("Documents:")
	for i := range docs {
		d := &docs[i]
		cmd.Printf("\n  %s\n", styles.Title.Render(d.ID))
		cmd.Printf("    Title: %s\n", d.Title)
		if d.Section != "" {
			cmd.Printf("    Section: %s\n", d.Section)
		}
		if d.URI != "" {
			cmd.Printf("    URI: %s\n", styles.Source.Render(d.URI))
		}
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNoDocuments
	}
	ctx := cmd.Context()
	doc, err := documentService.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	chunks, err := documentService.Chunks(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	w := tabwriter.NewWriter(cmd.OutOrStderr(), 0, 0, 1, ' ', 0)
	row := func(label, value string) { fmt.Fprintf(w, "  %s:\t%s\n", label, value) }
	row("Title", doc.Title)
	row("Section", doc.Section)
	row("URI", doc.URI)
	row("Chunks", fmt.Sprint(len(chunks)))
	row("Hash", doc.ContentHash)
	if !doc.ModifiedAt.IsZero() {
		row("Modified", doc.ModifiedAt.Format(timeLayout))
	}
	row("Updated", doc.UpdatedAt.Format(timeLayout))
	if err := w.Flush(); err != nil {
		return err
	}

	if len(doc.Metadata) > 0 {
		cmd.Println("\n  Metadata:")
		for _, k := range slices.Sorted(maps.Keys(doc.Metadata)) {
			cmd.Printf("    %s: %v\n", k, doc.Metadata[k])
		}
	}
	return nil
}

func runDocumentContent(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNoDocuments
	}
	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document content: %w", err)
	}
	// raw text goes to stdout so it can be piped
	fmt.Fprintln(cmd.OutOrStdout(), doc.Content)
	return nil
}

func runDocumentChunks(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNoDocuments
	}
	chunks, err := documentService.Chunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if documentJSON {
		return outputJSON(cmd, chunks)
	}
	if len(chunks) == 0 {
		cmd.Printf("Document %s has no chunks.\n", args[0])
		return nil
	}

	styles := stylesFor(cmd.OutOrStdout())
	for i := range chunks {
		c := &chunks[i]
		header := fmt.Sprintf("[%d] %s (%d chars)", c.Ordinal, c.ID, c.Length)
		if len(c.HeadingPath) > 0 {
			header += " " + strings.Join(c.HeadingPath, " > ")
		}
		if c.Oversized {
			header += " " + styles.Notice.Render("[oversized]")
		}
		cmd.Printf("%s\n%s\n\n", styles.Rank.Render(header), c.Content)
	}
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}
	if err := ingestService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Document %s removed from index.\n", args[0])
	return nil
}
