package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"sleuth/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse previously answered questions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a stored answer in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

func openHistory() (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("history is disabled in config")
	}
	return history.Open(cfg.History.DatabasePath)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%4d  %s  %-9s  %s\n",
			e.ID,
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			e.FocusMode,
			e.Query)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.Get(context.Background(), id)
	if err != nil {
		return err
	}

	fmt.Println(phaseStyle.Render(entry.Query))
	fmt.Println(dimStyle.Render(fmt.Sprintf("%s focus, answered %s in %s",
		entry.FocusMode,
		entry.CreatedAt.Local().Format(time.RFC822),
		entry.Elapsed.Round(time.Millisecond))))
	fmt.Println()

	body := entry.Answer
	if renderer, rerr := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); rerr == nil {
		if rendered, rerr := renderer.Render(body); rerr == nil {
			body = rendered
		}
	}
	fmt.Print(body)

	if len(entry.Sources) > 0 {
		fmt.Println(sourceStyle.Render("Sources:"))
		for _, s := range entry.Sources {
			fmt.Printf("  [%d] %s\n      %s\n", s.Rank, s.Title, dimStyle.Render(s.URL))
		}
	}
	return nil
}
