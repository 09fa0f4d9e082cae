package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/okian/ronbun/internal/config"
	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/internal/domain/scoring"
)

func newScoreCmd() *cobra.Command {
	var (
		file     string
		theme    string
		maxChars int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score an essay with the heuristic scorer",
		Example: `  ronbun score --file essay.txt --theme "デジタル化と教育"
  cat essay.txt | ronbun score --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := essayLimit(cmd, maxChars)
			if err != nil {
				return err
			}
			text, err := readEssay(cmd.InOrStdin(), file, limit)
			if err != nil {
				return err
			}
			res, err := scoring.NewHeuristic().Evaluate(cmd.Context(), scoring.Input{Text: text, Theme: theme})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "essay file, - for stdin")
	cmd.Flags().StringVarP(&theme, "theme", "t", "", "prompt the essay answers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	addMaxCharsFlag(cmd, &maxChars)
	return cmd
}

const maxCharsFlag = "max-chars"

func addMaxCharsFlag(cmd *cobra.Command, v *int) {
	cmd.Flags().IntVar(v, maxCharsFlag, 0, "longest essay accepted, in characters; defaults to max_essay_chars")
}

// essayLimit returns --max-chars when given, otherwise max_essay_chars from the
// service configuration (RONBUN_CONFIG file and RONBUN_ env vars).
func essayLimit(cmd *cobra.Command, flagged int) (int, error) {
	if cmd.Flags().Changed(maxCharsFlag) {
		if flagged <= 0 {
			return 0, fmt.Errorf("--%s must be positive, got %d", maxCharsFlag, flagged)
		}
		return flagged, nil
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return 0, err
	}
	return cfg.MaxEssayChars, nil
}

// readEssay reads the essay text from path, or from stdin when path is "-",
// rejecting text longer than limit characters.
func readEssay(stdin io.Reader, path string, limit int) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read essay: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if n := utf8.RuneCountInString(text); n > limit {
		return "", fmt.Errorf("%w: %d > %d characters", model.ErrEssayTooLong, n, limit)
	}
	return text, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, res model.ScoreResult) {
	fmt.Fprintf(w, "総合得点: %d / %d\n", res.Total, model.MaxTotal)
	fmt.Fprintf(w, "  構成: %2d / %d\n", res.Structure, model.MaxStructure)
	fmt.Fprintf(w, "  内容: %2d / %d\n", res.Content, model.MaxContent)
	fmt.Fprintf(w, "  論理: %2d / %d\n", res.Logic, model.MaxLogic)
	fmt.Fprintf(w, "  表現: %2d / %d\n", res.Expression, model.MaxExpression)
	if res.Notice != "" {
		fmt.Fprintf(w, "\n%s\n", res.Notice)
	}
	fmt.Fprintf(w, "\n講評:\n%s\n", res.Feedback)
	if res.Evaluations != (model.Evaluations{}) {
		fmt.Fprintln(w, "\n観点別評価:")
	}
	for _, ev := range []struct{ label, text string }{
		{"構成", res.Evaluations.Structure},
		{"内容", res.Evaluations.Content},
		{"論理", res.Evaluations.Logic},
		{"表現", res.Evaluations.Expression},
	} {
		if ev.text != "" {
			fmt.Fprintf(w, "  %s: %s\n", ev.label, ev.text)
		}
	}
	if len(res.Suggestions) > 0 {
		fmt.Fprintln(w, "\n改善点:")
		for _, s := range res.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}
