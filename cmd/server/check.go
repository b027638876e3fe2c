package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/pattern"
	"github.com/prasenjit/edgerules/internal/rules"
	"github.com/prasenjit/edgerules/internal/storage"
)

var checkCmd = &cobra.Command{
	Use:   "check [rules-file]",
	Short: "Validate a rules file",
	Long: `Loads a rules file and reports every rule that would be rejected, plus
warnings for patterns with regex groups and destinations that reference
parameters the source does not define.

Exits with a non-zero status when any rule is rejected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := viper.GetString("rules.path")
	if len(args) == 1 {
		path = args[0]
	}

	rejected, err := checkRules(cmd.OutOrStdout(), path)
	if err != nil {
		return err
	}
	if rejected > 0 {
		return fmt.Errorf("%d rule(s) rejected", rejected)
	}
	return nil
}

// checkRules validates the rules file at path and writes a report to w. It
// returns the number of rejected rules.
func checkRules(w io.Writer, path string) (int, error) {
	cfg, err := storage.LoadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", path, err)
	}

	valid, errs := rules.Validate(cfg)
	for _, err := range errs {
		fmt.Fprintf(w, "error: %v\n", err)
	}

	warnings := 0
	warn := func(kind string, i int, source, msg string) {
		warnings++
		fmt.Fprintf(w, "warning: %s[%d] (source %q): %s\n", kind, i, source, msg)
	}

	checkSource := func(kind string, i int, source string) {
		p, err := pattern.Compile(source)
		if err == nil && p.HasGroups() {
			warn(kind, i, source, "regex groups are matched but not captured")
		}
	}
	checkDestination := func(kind string, i int, source, destination string, has []models.Condition) {
		for _, name := range rules.UnresolvedPlaceholders(source, destination, has) {
			warn(kind, i, source, fmt.Sprintf("destination references unknown parameter :%s", name))
		}
	}

	for i, r := range valid.Redirects {
		checkSource("redirect", i, r.Source)
		checkDestination("redirect", i, r.Source, r.Destination, r.Has)
	}
	for _, phase := range rules.Phases() {
		kind := "rewrite." + string(phase)
		for i, r := range rewritesFor(valid.Rewrites, phase) {
			checkSource(kind, i, r.Source)
			checkDestination(kind, i, r.Source, r.Destination, r.Has)
		}
	}
	for i, r := range valid.Headers {
		checkSource("headers", i, r.Source)
		for _, h := range r.Headers {
			checkDestination("headers", i, r.Source, h.Value, r.Has)
		}
	}

	counts := valid.Counts()
	fmt.Fprintf(w, "%s: %d redirects, %d beforeFiles, %d afterFiles, %d fallback, %d headers; %d rejected, %d warnings\n",
		path, counts.Redirects, counts.BeforeFiles, counts.AfterFiles, counts.Fallback, counts.Headers, len(errs), warnings)

	return len(errs), nil
}

func rewritesFor(cfg models.RewritesConfig, phase rules.Phase) []models.RewriteRule {
	switch phase {
	case rules.PhaseBeforeFiles:
		return cfg.BeforeFiles
	case rules.PhaseAfterFiles:
		return cfg.AfterFiles
	default:
		return cfg.Fallback
	}
}
