package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/config"
)

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "List the intents and tools the assistant can act on",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		reg, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		printIntents(os.Stdout, reg)
		return nil
	},
}

func printIntents(w io.Writer, d catalog.Describer) {
	name := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)

	for i, in := range d.Intents() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		name.Fprint(w, in.Name)
		fmt.Fprintf(w, "  %s\n", in.Description)
		if len(in.Keywords) > 0 {
			dim.Fprintf(w, "  keywords: %s\n", strings.Join(in.Keywords, ", "))
		}
		for _, p := range in.Parameters {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(w, "  - %s (%s, %s): %s\n", p.Name, p.Type, req, p.Question)
		}
		for _, toolName := range in.Tools {
			tool, err := d.DescribeTool(toolName)
			if err != nil {
				color.New(color.FgRed).Fprintf(w, "  tool %s: %v\n", toolName, err)
				continue
			}
			line := "  tool " + tool.Name + "(" + strings.Join(tool.Parameters, ", ") + ")"
			if len(tool.Requires) > 0 {
				line += " requires " + strings.Join(tool.Requires, ", ")
			}
			if tool.Returns != "" {
				line += " -> " + tool.Returns
			}
			dim.Fprintln(w, line)
		}
	}
}
