package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driving"
)

var (
	ingestStrategy  string
	ingestChunkSize int
	ingestOverlap   int
	ingestAsync     bool
	ingestSubjectID int64
	ingestOwnerID   int64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Process documents into searchable chunks",
	Long: `Parses each file, splits the text into chunks, embeds the chunks
and stores everything in the configured backend. With --async the
pipeline runs in the background and a task ID is printed instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestStrategy, "strategy", "", "chunking strategy: fixed_size, sentence or paragraph")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "characters per chunk")
	ingestCmd.Flags().IntVar(&ingestOverlap, "chunk-overlap", 0, "overlapping characters between chunks")
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "enqueue processing and return immediately")
	ingestCmd.Flags().Int64Var(&ingestSubjectID, "subject", 0, "subject the documents belong to")
	ingestCmd.Flags().Int64Var(&ingestOwnerID, "owner", 0, "owning user ID")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := ensureServices(ctx); err != nil {
		return err
	}

	opts := driving.ProcessOptions{
		Strategy:     ingestStrategy,
		ChunkSize:    ingestChunkSize,
		ChunkOverlap: ingestOverlap,
	}

	for _, path := range args {
		if err := ingestFile(ctx, cmd, path, opts, ingestAsync, ingestSubjectID, ingestOwnerID); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// ingestFile stores a new document record for the file and runs (or
// enqueues) the pipeline on it.
func ingestFile(ctx context.Context, cmd *cobra.Command, path string, opts driving.ProcessOptions, async bool, subjectID, ownerID int64) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fileType := mime.TypeByExtension(filepath.Ext(path))
	if !cfg.AllowsMIME(fileType) {
		return fmt.Errorf("%w: type %q is not in allowed_mime_types", domain.ErrUnsupportedFormat, fileType)
	}

	doc := &domain.Document{
		ID:        uuid.New(),
		SubjectID: subjectID,
		OwnerID:   ownerID,
		Filename:  filepath.Base(path),
		FileType:  fileType,
		FileSize:  int64(len(content)),
		Status:    domain.StatusPending,
	}
	if err := store.SaveDocument(ctx, doc); err != nil {
		return err
	}

	if async {
		taskID, err := pipelineRunner.ProcessAsync(ctx, doc.ID, content, opts)
		if err != nil {
			return err
		}
		cmd.Printf("%s  enqueued  document=%s task=%s\n", doc.Filename, doc.ID, taskID)
		return nil
	}

	if err := pipelineRunner.Process(ctx, doc.ID, content, opts); err != nil {
		return err
	}

	processed, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	cmd.Printf("%s  %s  document=%s chunks=%d\n",
		processed.Filename, processed.Status, processed.ID, processed.TotalChunks)
	if processed.ProcessingError != "" {
		cmd.Printf("  note: %s\n", processed.ProcessingError)
	}
	return nil
}
