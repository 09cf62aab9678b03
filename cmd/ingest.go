package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/app"
	"github.com/exocortex/exocortex/internal/config"
	"github.com/exocortex/exocortex/internal/memory"
)

// NewIngestCmd creates the ingest command (factory pattern)
func NewIngestCmd(cfg *config.Config) *cobra.Command {
	var (
		collection string
		source     string
		extensions []string
		recursive  bool
		clear      bool
	)

	ingestCmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Chunk and index a file or directory",
		Long: `Ingest reads a file or directory, splits each document into
overlapping chunks, embeds them, and stores them in the target
collection. Re-ingesting the same source overwrites its chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := memory.ParseCollection(collection)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				return runIngest(ctx, a, c, args[0], ingestFlags{
					source:     source,
					extensions: extensions,
					recursive:  recursive,
					clear:      clear,
				})
			})
		},
	}

	ingestCmd.Flags().StringVarP(&collection, "collection", "c", memory.CollectionProjectContext.String(), "target collection")
	ingestCmd.Flags().StringVar(&source, "source", "", "logical source name (defaults to the file name)")
	ingestCmd.Flags().StringSliceVar(&extensions, "ext", cfg.ProjectExtensions, "file extensions to include when ingesting a directory")
	ingestCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	ingestCmd.Flags().BoolVar(&clear, "clear", false, "empty the collection before ingesting")

	return ingestCmd
}

type ingestFlags struct {
	source     string
	extensions []string
	recursive  bool
	clear      bool
}

func runIngest(ctx context.Context, a *app.App, c memory.Collection, path string, flags ingestFlags) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if info.IsDir() {
		report, err := a.Ingester.IngestDirectory(ctx, c, path, memory.DirOptions{
			Extensions:    flags.extensions,
			Recursive:     flags.recursive,
			ClearExisting: flags.clear,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d files (%d chunks) into %s\n", report.FilesIngested, report.ChunksAdded, c)
		if report.FilesSkipped > 0 {
			fmt.Printf("Skipped %d files\n", report.FilesSkipped)
		}
		for _, f := range report.Failures {
			fmt.Printf("  failed: %s: %v\n", f.Path, f.Err)
		}
		return report.Err()
	}

	n, err := a.Ingester.IngestFile(ctx, c, path, memory.IngestOptions{
		SourceName:    flags.source,
		ClearExisting: flags.clear,
	})
	if err != nil {
		if errors.Is(err, memory.ErrIngestion) {
			return err
		}
		return fmt.Errorf("ingesting %s: %w", path, err)
	}
	fmt.Printf("Ingested %d chunks into %s\n", n, c)
	return nil
}
