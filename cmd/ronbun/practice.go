package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/internal/domain/predict"
	"github.com/okian/ronbun/internal/domain/scoring"
	"github.com/okian/ronbun/internal/domain/session"
)

type practiceOptions struct {
	university  string
	faculty     string
	department  string
	file        string
	catalogPath string
	elapsed     time.Duration
	seed        uint64
	maxChars    int
	list        bool
	asJSON      bool
}

func newPracticeCmd() *cobra.Command {
	var o practiceOptions
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run a practice session: predict a prompt, submit an essay, get a score",
		Example: `  ronbun practice --list
  ronbun practice -u waseda --faculty political-science -d politics -f essay.txt --elapsed 75m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPractice(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.university, "university", "u", "", "university id")
	f.StringVar(&o.faculty, "faculty", "", "faculty id")
	f.StringVarP(&o.department, "department", "d", "", "department id")
	f.StringVarP(&o.file, "file", "f", "", "essay file, - for stdin; empty prints the prompt only")
	f.StringVar(&o.catalogPath, "catalog", "", "catalog YAML overriding the built-in one")
	f.DurationVar(&o.elapsed, "elapsed", 0, "time spent writing, for the overtime check")
	f.Uint64Var(&o.seed, "seed", 0, "prompt generator seed; 0 is random")
	f.BoolVar(&o.list, "list", false, "list the available departments")
	f.BoolVar(&o.asJSON, "json", false, "print the session result as JSON")
	addMaxCharsFlag(cmd, &o.maxChars)
	return cmd
}

func runPractice(cmd *cobra.Command, o practiceOptions) error {
	cat, err := loadCatalog(o.catalogPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if o.list {
		for _, u := range cat.Universities() {
			for _, fac := range u.Faculties {
				for _, dep := range fac.Departments {
					fmt.Fprintf(out, "%s %s %s\t%s %s %s\n", u.ID, fac.ID, dep.ID, u.Name, fac.Name, dep.Name)
				}
			}
		}
		return nil
	}

	sel, err := cat.Department(o.university, o.faculty, o.department)
	if err != nil {
		return err
	}
	var popts []predict.Option
	if o.seed != 0 {
		popts = append(popts, predict.WithRand(rand.New(rand.NewPCG(o.seed, o.seed))))
	}
	prompt := predict.New(popts...).ForSelection(sel)

	state, err := session.New().Select(sel)
	if err != nil {
		return err
	}
	start := time.Now()
	if state, err = state.Begin(prompt, start); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s %s\n", sel.UniversityName, sel.FacultyName, sel.DepartmentName)
	fmt.Fprintf(out, "予想問題 (%d分): %s\n", prompt.TimeLimit, prompt.Theme)
	if o.file == "" {
		return nil
	}

	limit, err := essayLimit(cmd, o.maxChars)
	if err != nil {
		return err
	}
	text, err := readEssay(cmd.InOrStdin(), o.file, limit)
	if err != nil {
		return err
	}
	if state, err = state.Submit(uuid.NewString(), text, start.Add(o.elapsed)); err != nil {
		return err
	}
	res, err := scoring.NewHeuristic().Evaluate(cmd.Context(), scoring.Input{
		Text:       text,
		Theme:      prompt.Theme,
		University: sel.UniversityName,
		Faculty:    sel.FacultyName,
	})
	if err != nil {
		return err
	}
	if state, err = state.Complete(res); err != nil {
		return err
	}

	if o.asJSON {
		return writeJSON(out, state)
	}
	fmt.Fprintln(out)
	if state.Overtime {
		fmt.Fprintf(out, "制限時間超過: %d秒 / %d分\n\n", state.Essay.ElapsedSeconds, prompt.TimeLimit)
	}
	printResult(out, *state.Result)
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
