package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/parser"
	"github.com/prasenjit/edgerules/internal/rules"
)

var importCmd = &cobra.Command{
	Use:   "import <openapi-file>",
	Short: "Generate rewrite rules from an OpenAPI 3 document",
	Long: `Reads an OpenAPI 3 document and prints a rules file with one rewrite per
path, forwarding to the upstream. Path templates such as /users/{id}
become /users/:id.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importUpstream string
	importBasePath string
	importPhase    string
)

func init() {
	importCmd.Flags().StringVarP(&importUpstream, "upstream", "u", "", "Upstream base URL (default: first server in the document)")
	importCmd.Flags().StringVarP(&importBasePath, "base-path", "b", "", "Prefix added to every rule source")
	importCmd.Flags().StringVar(&importPhase, "phase", string(rules.PhaseAfterFiles), "Rewrite phase: beforeFiles, afterFiles or fallback")
}

func runImport(cmd *cobra.Command, args []string) error {
	phase, ok := rules.ParsePhase(importPhase)
	if !ok || phase == rules.PhaseAll {
		return fmt.Errorf("invalid phase %q", importPhase)
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	result, err := parser.NewParser().ImportRewrites(string(content), importUpstream, importBasePath)
	if err != nil {
		return err
	}

	cfg := models.RouteConfig{}
	switch phase {
	case rules.PhaseBeforeFiles:
		cfg.Rewrites.BeforeFiles = result.Rules
	case rules.PhaseAfterFiles:
		cfg.Rewrites.AfterFiles = result.Rules
	case rules.PhaseFallback:
		cfg.Rewrites.Fallback = result.Rules
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# Generated from %s (%s %s)\n", args[0], result.Title, result.Version)
	_, err = out.Write(data)
	return err
}
