package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docrag-go/internal/bootstrap"
	"docrag-go/internal/model"
	"docrag-go/internal/pipeline"
	"docrag-go/internal/service"
)

var (
	ingestSection  string
	ingestCategory string
	ingestType     string
	ingestAsync    bool

	pasteTitle string

	listJSON bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Extract, chunk, embed and store files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(runIngest),
}

var pasteCmd = &cobra.Command{
	Use:   "paste [text]",
	Short: "Ingest pasted text",
	Long:  `Ingests the argument as a text document. Without an argument the text is read from stdin.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  withApp(runPaste),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  withApp(runList),
}

var deleteCmd = &cobra.Command{
	Use:   "delete [fileName]",
	Short: "Delete every chunk of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runDelete),
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSection, "section", "", "section recorded on every chunk")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "category recorded on every chunk")
	ingestCmd.Flags().StringVar(&ingestType, "type", "", "file type; inferred from the extension when empty")
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "queue the files on kafka instead of ingesting them here")

	pasteCmd.Flags().StringVarP(&pasteTitle, "title", "t", "", "document title")
	_ = pasteCmd.MarkFlagRequired("title")

	listCmd.Flags().BoolVar(&listJSON, "json", false, "output documents as JSON")

	rootCmd.AddCommand(ingestCmd, pasteCmd, listCmd, deleteCmd)
}

func runIngest(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, args []string) error {
	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := app.Uploads.Upload(ctx, service.UploadRequest{
			Data:     data,
			FileName: path,
			FileType: ingestType,
			UserID:   userID,
			Section:  ingestSection,
			Category: ingestCategory,
			Async:    ingestAsync,
		})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		if !printResult(cmd.OutOrStdout(), path, res) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files were not ingested", failed, len(args))
	}
	return nil
}

func runPaste(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, args []string) error {
	var content string
	if len(args) == 1 {
		content = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		content = string(data)
	}
	res, err := app.Uploads.Paste(ctx, pipeline.TextInput{Title: pasteTitle, Content: content, UserID: userID})
	if err != nil {
		return err
	}
	if !printResult(cmd.OutOrStdout(), pasteTitle, res) {
		return fmt.Errorf("%s was not ingested", pasteTitle)
	}
	return nil
}

func printResult(w io.Writer, name string, res model.IngestResult) bool {
	switch {
	case res.Queued:
		fmt.Fprintf(w, "queued %s (document %s)\n", name, res.DocumentID)
	case res.Success:
		fmt.Fprintf(w, "ingested %s: %d chunks (document %s)\n", name, res.ChunksProcessed, res.DocumentID)
	default:
		fmt.Fprintf(w, "failed %s at %s: %s\n", name, res.Stage, res.Error)
	}
	return res.Success
}

func runList(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, _ []string) error {
	docs, err := app.Documents.List(ctx, userID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(out, "%-40s %-5s %4d chunks  %s\n",
			d.FileName, d.FileType, d.TotalChunks, d.UploadedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runDelete(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, args []string) error {
	name := strings.TrimSpace(args[0])
	deleted, err := app.Documents.Delete(ctx, name, userID)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Fprintf(cmd.OutOrStdout(), "no chunks found for %s\n", name)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
	return nil
}
