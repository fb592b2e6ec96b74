package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sleuth/internal/history"
	"sleuth/internal/orchestrator"
)

var (
	phaseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stopStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question through iterative web search",
	Long: `Runs the full orchestration for a question and prints a cited answer:

  1. Generate diverse search queries for the question
  2. Search the web concurrently and merge unique results
  3. Analyze coverage gaps and search again until complete
  4. Synthesize an answer citing the collected sources`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// progressObserver prints phase transitions and decisions to stderr so
// stdout stays clean answer text.
func progressObserver() orchestrator.Observer {
	return orchestrator.ObserverFunc(func(ev orchestrator.Event) {
		switch ev.Type {
		case orchestrator.EventQueriesGenerated:
			fmt.Fprintln(os.Stderr, phaseStyle.Render("» searching:"))
			for _, q := range ev.Queries {
				fmt.Fprintln(os.Stderr, dimStyle.Render("    "+q))
			}
		case orchestrator.EventAnalysis:
			if ev.Analysis != nil {
				fmt.Fprintln(os.Stderr, dimStyle.Render(
					fmt.Sprintf("  coverage %d%%, %d gaps", ev.Analysis.Completeness, len(ev.Analysis.InformationGaps))))
			}
		case orchestrator.EventStop:
			fmt.Fprintln(os.Stderr, stopStyle.Render("  stopped: "+string(ev.StopReason)))
		case orchestrator.EventBatchOutcome:
			fmt.Fprintln(os.Stderr, dimStyle.Render(fmt.Sprintf("  %d results collected", ev.ResultSize)))
		}
	})
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	eng, err := buildEngine(progressObserver())
	if err != nil {
		return err
	}
	sc, err := searchContext(query)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	answer, err := eng.Search(ctx, sc)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("search failed"))
		return err
	}

	printAnswer(answer)
	logger.Debug("ask complete",
		zap.String("query", query),
		zap.Int("sources", len(answer.Sources)),
		zap.Duration("elapsed", time.Since(started)))

	saveToHistory(ctx, answer)
	return nil
}

// printAnswer renders the answer as terminal markdown with the source list
// appended. Rendering failures fall back to raw text.
func printAnswer(answer *orchestrator.FinalAnswer) {
	body := answer.Answer
	if !plainFlag {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			if rendered, rerr := renderer.Render(body); rerr == nil {
				body = rendered
			}
		}
	}
	fmt.Print(body)
	if !strings.HasSuffix(body, "\n") {
		fmt.Println()
	}

	if len(answer.Sources) > 0 {
		fmt.Println(sourceStyle.Render("Sources:"))
		for _, s := range answer.Sources {
			fmt.Printf("  [%d] %s\n      %s\n", s.Rank, s.Title, dimStyle.Render(s.URL))
		}
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("answered in %s", answer.Elapsed.Round(time.Millisecond))))
}

// saveToHistory is best effort: a failed save never fails the command.
func saveToHistory(ctx context.Context, answer *orchestrator.FinalAnswer) {
	if !cfg.History.Enabled {
		return
	}
	store, err := history.Open(cfg.History.DatabasePath)
	if err != nil {
		logger.Warn("history unavailable", zap.Error(err))
		return
	}
	defer store.Close()
	if _, err := store.Save(ctx, answer); err != nil {
		logger.Warn("history save failed", zap.Error(err))
	}
}
