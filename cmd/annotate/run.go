package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"annotation-backend/internal/bootstrap"
	"annotation-backend/internal/engine"
	"annotation-backend/internal/extract"
	"annotation-backend/internal/pipeline"
	"annotation-backend/internal/shared/config"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] [file]",
		Short: "Annotate one document",
		Long:  `Run annotates the --text value or the given file (text, HTML, PDF or DOCX) and writes XML`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAnnotate,
	}
	cmd.Flags().String("text", "", "annotate this text instead of a file")
	cmd.Flags().StringP("out", "o", "", "write XML to this path instead of stdout")
	cmd.Flags().String("content-type", "", "media type of the file (sniffed when empty)")
	cmd.Flags().Int("repeat", 1, "annotate the document this many times on one engine")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Build the engine and report its status",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	text, err := cmd.Flags().GetString("text")
	if err != nil {
		return fmt.Errorf("failed to get text flag: %w", err)
	}
	outPath, _ := cmd.Flags().GetString("out")
	contentType, _ := cmd.Flags().GetString("content-type")
	repeat, _ := cmd.Flags().GetInt("repeat")
	if repeat < 1 {
		repeat = 1
	}

	sub, err := readSubmission(ctx, text, args, contentType)
	if err != nil {
		return err
	}

	manager, err := managerFromFlags(cmd)
	if err != nil {
		return err
	}
	defer manager.Close(context.Background())
	processor := pipeline.New(manager)

	var out pipeline.Output
	for i := 0; i < repeat; i++ {
		out, err = processor.Process(ctx, sub)
		if err != nil {
			return fmt.Errorf("annotation failed: %w", err)
		}
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(out.XML); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if outPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (syntax=%d semantic=%d reused=%t)\n", outPath, out.SyntaxCount, out.SemanticCount, out.Metadata.Reused)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	manager, err := managerFromFlags(cmd)
	if err != nil {
		return err
	}
	defer manager.Close(context.Background())

	warmErr := manager.Warm(ctx)
	report := struct {
		OK     bool          `json:"ok"`
		Engine engine.Status `json:"engine"`
	}{OK: warmErr == nil, Engine: manager.Status()}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if warmErr != nil {
		return fmt.Errorf("engine check failed: %w", warmErr)
	}
	return nil
}

// readSubmission prefers --text over a file argument.
func readSubmission(ctx context.Context, text string, args []string, contentType string) (pipeline.Submission, error) {
	if strings.TrimSpace(text) != "" {
		return pipeline.TextSubmission(text), nil
	}
	if len(args) == 0 {
		return pipeline.Submission{}, fmt.Errorf("%w: pass --text or a file", pipeline.ErrNoInput)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return pipeline.Submission{}, fmt.Errorf("read input: %w", err)
	}
	name := filepath.Base(args[0])
	if len(data) == 0 {
		return pipeline.Submission{}, fmt.Errorf("%w: file %s is empty", pipeline.ErrNoInput, name)
	}
	body, err := extract.FromUpload(ctx, data, contentType, name)
	if err != nil {
		return pipeline.Submission{}, err
	}
	return pipeline.FileSubmission(name, body), nil
}

func managerFromFlags(cmd *cobra.Command) (*engine.Manager, error) {
	flags := cmd.Root().PersistentFlags()
	dictionary, _ := flags.GetString("dictionary")
	engineURL, _ := flags.GetString("engine-url")
	lockTimeout, _ := flags.GetDuration("lock-timeout")

	cfg := config.Config{
		Engine:            config.EngineDictionary,
		EngineDictionary:  dictionary,
		EngineLockTimeout: lockTimeout,
	}
	if engineURL != "" {
		cfg.Engine = config.EngineRemote
		cfg.EngineURL = engineURL
	}
	factory, err := bootstrap.EngineFactory(cfg)
	if err != nil {
		return nil, err
	}
	return bootstrap.NewManager(cfg, factory), nil
}
