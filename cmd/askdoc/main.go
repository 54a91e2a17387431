package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/askdoc/internal/app"
	"github.com/markdave123-py/askdoc/internal/config"
	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/models"
	"github.com/markdave123-py/askdoc/internal/services"
	"github.com/markdave123-py/askdoc/internal/tui"
)

// Exit codes.
const (
	exitGeneric       = 1
	exitConfigInvalid = 2
)

type flags struct {
	query   string
	topK    int
	envFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		if errors.Is(err, core.ErrConfiguration) {
			os.Exit(exitConfigInvalid)
		}
		os.Exit(exitGeneric)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "askdoc <file>",
		Short: "Ask questions about a document",
		Long: "askdoc indexes one document (PDF, text, markdown or office formats) and answers " +
			"questions about it using only its content.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "ask one question, print the answer and exit")
	cmd.Flags().IntVar(&f.topK, "top-k", 0, "number of passages to retrieve (default TOP_K)")
	cmd.Flags().StringVar(&f.envFile, "env", "", "path to an env file to load before the environment")
	return cmd
}

func run(ctx context.Context, path string, f flags) error {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	cfg := config.LoadConfig()
	if f.topK > 0 {
		cfg.TopK = f.topK
	}

	// the TUI owns the terminal, so logs go to a file
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(os.TempDir(), "askdoc.log")
	}
	if err := logger.InitLogger(logger.Options{Env: cfg.Env, Level: cfg.LogLevel, OutputPath: logFile}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	pipeline, err := app.NewPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	session := services.NewPipelineSession(pipeline.Pipeline)
	defer session.Close(context.Background())

	if f.query != "" {
		return askOnce(ctx, session, filepath.Base(path), data, f.query)
	}

	model := tui.New(ctx, session, filepath.Base(path), data)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func askOnce(ctx context.Context, session *services.PipelineSession, fileName string, data []byte, query string) error {
	doc, err := session.Upload(ctx, fileName, "", data)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s processed successfully (%d chunks).\n", doc.FileName, doc.ChunkCount)

	answer, err := session.Ask(ctx, query)
	if err != nil {
		return err
	}
	printAnswer(answer)
	return nil
}

func printAnswer(a *models.Answer) {
	fmt.Println(a.Text)
	if len(a.Passages) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Sources:")
	for _, p := range a.Passages {
		fmt.Printf("  [%d] score=%.3f\n", p.Position, p.Score)
	}
}
