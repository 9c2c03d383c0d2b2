package main

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/rules"
)

var errInvalidDocuments = errors.New("some rule documents are invalid")

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rule documents",
	Long:  paragraph(fmt.Sprintf("\n%s rule documents without running the pipeline.", keyword("Check and show"))),
	Args:  cobra.NoArgs,
}

var rulesCheckCmd = &cobra.Command{
	Use:     "check FILE...",
	Short:   "Validate rule documents",
	Example: paragraph("eyesfree rules check overrides/*.yaml"),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := false
		for _, path := range args {
			// each document gets its own repository so declared classes
			// do not leak between them
			repo, _, err := newRepository(log.Default())
			if err != nil {
				return err
			}
			set, err := repo.LoadFile(path)
			if err != nil {
				failed = true
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n  %s\n", failMark, path, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okMark, path, faint(fmt.Sprintf("(%d rules)", len(set))))
		}
		if failed {
			return errInvalidDocuments
		}
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:     "show [FILE]",
	Short:   "Print the rules of a document",
	Long:    paragraph("\nPrint the rules of a document in evaluation order. Without a file the built-in default rules are shown."),
	Example: paragraph("eyesfree rules show\neyesfree rules show overrides/com.android.phone.yaml"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := newRepository(log.Default())
		if err != nil {
			return err
		}

		title := rules.DefaultSource
		var set rules.RuleSet
		if len(args) == 0 {
			set, err = repo.LoadDefault()
		} else {
			title = args[0]
			set, err = repo.LoadFile(args[0])
		}
		if err != nil {
			return err
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(terminalWidth()),
		)
		if err != nil {
			return fmt.Errorf("unable to create renderer: %w", err)
		}
		out, err := r.Render(rulesMarkdown(title, set))
		if err != nil {
			return fmt.Errorf("unable to render rules: %w", err)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

// rulesMarkdown renders set as a markdown table.
func rulesMarkdown(title string, set rules.RuleSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(set) == 0 {
		b.WriteString("No rules.\n")
		return b.String()
	}

	b.WriteString("| # | Filter | Formatter | Metadata |\n")
	b.WriteString("|---|--------|-----------|----------|\n")
	for _, r := range set {
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n",
			r.Ordinal,
			cell(describe(r.Filter)),
			cell(describe(r.Formatter)),
			cell(metadataString(r.Metadata)),
		)
	}
	return b.String()
}

func describe(v any) string {
	if v == nil {
		return "*any*"
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", v)
}

func metadataString(md map[string]any) string {
	keys := slices.Sorted(maps.Keys(md))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, md[k])
	}
	return strings.Join(parts, " ")
}

func cell(s string) string {
	if s == "" {
		return " "
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}

// terminalWidth returns the word-wrap width for rendered output.
func terminalWidth() int {
	width := 80
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = min(w, 120)
		}
	}
	return width
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd, rulesShowCmd)
}
