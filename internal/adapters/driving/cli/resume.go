package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [document-id]",
	Short: "Embed chunks that are still missing vectors",
	Long: `Finds the document's chunks without a stored embedding and embeds
just those, keeping the existing chunk set. Useful after a run that
completed with embedding gaps, for example under provider rate
limits.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := ensureServices(ctx); err != nil {
		return err
	}

	documentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document ID %q: %w", args[0], err)
	}

	if err := pipelineRunner.Resume(ctx, documentID); err != nil {
		return err
	}

	doc, err := store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	cmd.Printf("%s  %s  chunks=%d\n", doc.Filename, doc.Status, doc.TotalChunks)
	if doc.ProcessingError != "" {
		cmd.Printf("  note: %s\n", doc.ProcessingError)
	}
	return nil
}
