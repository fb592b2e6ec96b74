package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sleuth/internal/orchestrator"
)

var streamCmd = &cobra.Command{
	Use:   "stream [question]",
	Short: "Answer a question, streaming the answer as it is written",
	Long: `Like ask, but the final answer prints chunk by chunk as the model
produces it instead of arriving whole. Streaming runs a single search pass
with no iterative refinement, trading coverage for time to first output.
Markdown is left unrendered since chunks are partial.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStream,
}

func runStream(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	progress := progressObserver()
	observer := orchestrator.ObserverFunc(func(ev orchestrator.Event) {
		if ev.Type == orchestrator.EventAnswerChunk {
			fmt.Print(ev.Chunk)
			return
		}
		if ev.Type == orchestrator.EventAnswerStarted {
			fmt.Fprintln(os.Stderr)
		}
		progress.OnEvent(ev)
	})

	eng, err := buildEngine(observer)
	if err != nil {
		return err
	}
	sc, err := searchContext(query)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	answer, err := eng.SearchStream(ctx, sc)
	if err != nil {
		return err
	}
	fmt.Println()

	if len(answer.Sources) > 0 {
		fmt.Println(sourceStyle.Render("Sources:"))
		for _, s := range answer.Sources {
			fmt.Printf("  [%d] %s\n      %s\n", s.Rank, s.Title, dimStyle.Render(s.URL))
		}
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("answered in %s", answer.Elapsed.Round(time.Millisecond))))

	saveToHistory(ctx, answer)
	return nil
}
