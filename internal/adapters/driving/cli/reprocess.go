package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tutorstack/docproc/internal/core/ports/driving"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [document-id] [file]",
	Short: "Run the pipeline again for an existing document",
	Long: `Resets the document to pending and processes the given file
contents from scratch. The previous chunks and embeddings are
replaced.`,
	Args: cobra.ExactArgs(2),
	RunE: runReprocess,
}

func init() {
	reprocessCmd.Flags().StringVar(&ingestStrategy, "strategy", "", "chunking strategy: fixed_size, sentence or paragraph")
	reprocessCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "characters per chunk")
	reprocessCmd.Flags().IntVar(&ingestOverlap, "chunk-overlap", 0, "overlapping characters between chunks")
	rootCmd.AddCommand(reprocessCmd)
}

func runReprocess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := ensureServices(ctx); err != nil {
		return err
	}

	documentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document ID %q: %w", args[0], err)
	}

	content, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	opts := driving.ProcessOptions{
		Strategy:     ingestStrategy,
		ChunkSize:    ingestChunkSize,
		ChunkOverlap: ingestOverlap,
	}
	if err := pipelineRunner.Reprocess(ctx, documentID, content, opts); err != nil {
		return err
	}

	doc, err := store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	cmd.Printf("%s  %s  chunks=%d\n", doc.Filename, doc.Status, doc.TotalChunks)
	return nil
}
