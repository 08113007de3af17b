package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kuitang/linknotes/internal/notes"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		query  string
		format string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes in creation order",
		Long:  `List every note with its backlinks. --query keeps only notes whose title or content contains the text, ignoring case.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			var result *notes.NoteListResult
			if query != "" {
				result, err = a.Notes.Search(ctx, query)
			} else {
				result, err = a.Notes.List(ctx)
			}
			if err != nil {
				return fmt.Errorf("listing notes: %w", err)
			}

			return render(cmd.OutOrStdout(), format, result.Notes, func(w io.Writer) error {
				if len(result.Notes) == 0 {
					fmt.Fprintln(w, "No notes.")
					return nil
				}
				for _, n := range result.Notes {
					fmt.Fprintf(w, "%s\t%s\t<- %s\n", n.ID, n.Title, joinBacklinks(n.Backlinks.Sorted()))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Only list notes containing this text")
	addFormatFlag(cmd, &format)
	return cmd
}

func newViewCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "view [id]",
		Short: "Show a note with its backlinks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			note, err := a.Notes.Get(commandContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("reading note: %w", err)
			}
			return render(cmd.OutOrStdout(), format, note, func(w io.Writer) error {
				fmt.Fprintf(w, "# %s\n", note.Title)
				fmt.Fprintf(w, "Backlinks: %s\n\n", joinBacklinks(note.Backlinks.Sorted()))
				fmt.Fprintln(w, note.Content)
				return nil
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

// readContent returns the --content value, or the contents of --file
// ("-" reads stdin). Setting both is an error.
func readContent(cmd *cobra.Command, content, file string) (string, error) {
	if file == "" {
		return content, nil
	}
	if cmd.Flags().Changed("content") {
		return "", fmt.Errorf("--content and --file are mutually exclusive")
	}
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), notes.MaxContentBytes+1))
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	return string(data), nil
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		title   string
		content string
		file    string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		Long:  `Create a note. Mentioning another note's exact title in the content links to it.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(cmd, content, file)
			if err != nil {
				return err
			}

			a, err := opts.openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			note, err := a.Notes.Create(commandContext(cmd), notes.CreateNoteParams{Title: title, Content: body})
			if err != nil {
				return fmt.Errorf("creating note: %w", err)
			}
			return render(cmd.OutOrStdout(), format, note, func(w io.Writer) error {
				fmt.Fprintln(w, note.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Note title (required)")
	cmd.Flags().StringVarP(&content, "content", "c", "", "Note content")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read content from a file, or - for stdin")
	addFormatFlag(cmd, &format)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		title   string
		content string
		file    string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Change a note's title or content",
		Long:  `Update a note. Only the fields given on the command line change; backlinks across all notes are recomputed.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params notes.UpdateNoteParams
			if cmd.Flags().Changed("title") {
				params.Title = &title
			}
			if cmd.Flags().Changed("content") || file != "" {
				body, err := readContent(cmd, content, file)
				if err != nil {
					return err
				}
				params.Content = &body
			}
			if params.Title == nil && params.Content == nil {
				return fmt.Errorf("nothing to update: pass --title, --content or --file")
			}

			a, err := opts.openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			note, err := a.Notes.Update(commandContext(cmd), args[0], params)
			if err != nil {
				return fmt.Errorf("updating note: %w", err)
			}
			return render(cmd.OutOrStdout(), format, note, func(w io.Writer) error {
				fmt.Fprintf(w, "Updated %s (backlinks: %s)\n", note.ID, joinBacklinks(note.Backlinks.Sorted()))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&content, "content", "c", "", "New content")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read new content from a file, or - for stdin")
	addFormatFlag(cmd, &format)
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a note",
		Long:  `Delete permanently removes a note and drops its title from the backlinks of the notes it mentioned.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Notes.Delete(commandContext(cmd), args[0]); err != nil {
				return fmt.Errorf("deleting note: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Note %s deleted.\n", args[0])
			return nil
		},
	}
}

func newBacklinksCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "backlinks [id]",
		Short: "List the notes that mention a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := a.Notes.Backlinks(commandContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("resolving backlinks: %w", err)
			}
			return render(cmd.OutOrStdout(), format, sources, func(w io.Writer) error {
				for _, src := range sources {
					fmt.Fprintf(w, "%s\t%s\n", src.ID, src.Title)
				}
				return nil
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}
