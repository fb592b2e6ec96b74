package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that both backing services answer with the current config",
	Long: `Issues one minimal request against the generative-language API and one
against the web search API, then reports which succeeded. Useful after
editing credentials.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res := eng.ValidateConfiguration(ctx)
	fmt.Printf("generation: %s\n", okLabel(res.GenerationOK))
	fmt.Printf("search:     %s\n", okLabel(res.SearchOK))
	if !res.OK {
		return fmt.Errorf("configuration validation failed")
	}
	fmt.Println(sourceStyle.Render("configuration OK"))
	return nil
}

func okLabel(ok bool) string {
	if ok {
		return sourceStyle.Render("ok")
	}
	return errorStyle.Render("failed")
}
