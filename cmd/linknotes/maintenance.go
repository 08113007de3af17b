package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kuitang/linknotes/internal/mcp"
)

func newRebuildCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every note's backlinks",
		Long:  `Rebuild derives all backlinks from scratch. Run it after editing the database by other means.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Notes.Rebuild(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("rebuilding backlinks: %w", err)
			}
			return render(cmd.OutOrStdout(), format, result, func(w io.Writer) error {
				fmt.Fprintf(w, "Scanned %d notes, rewrote backlinks of %d.\n", result.NotesScanned, result.NotesRewritten)
				return nil
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		list   bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of all notes to object storage",
		Long: `Export writes every note with its backlinks as one JSON object under EXPORT_PREFIX.
With DATABASE_KEY set the snapshot is encrypted. --list shows existing snapshots instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := opts.openWithExports(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if list {
				objects, err := a.Exporter.List(ctx)
				if err != nil {
					return fmt.Errorf("listing exports: %w", err)
				}
				return render(cmd.OutOrStdout(), format, objects, func(w io.Writer) error {
					for _, obj := range objects {
						fmt.Fprintf(w, "%s\t%d\n", obj.Key, obj.Size)
					}
					return nil
				})
			}

			result, err := a.Exporter.Export(ctx)
			if err != nil {
				return fmt.Errorf("exporting notes: %w", err)
			}
			return render(cmd.OutOrStdout(), format, result, func(w io.Writer) error {
				fmt.Fprintf(w, "Exported %d notes to %s (%d bytes)\n", result.NoteCount, result.Key, result.Bytes)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List existing snapshots")
	addFormatFlag(cmd, &format)
	return cmd
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the notes tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			return mcp.NewServer(a.Notes).RunStdio(cmd.Context())
		},
	}
}
