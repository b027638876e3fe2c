package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prasenjit/edgerules/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration and a sample rules file",
	Long: `Creates config.yaml with default settings and rules.yaml with example
redirect, rewrite and header rules, plus a public/ directory for static files.

Existing files are not overwritten unless --force is used.`,
	RunE: runInit,
}

var (
	initForce bool
	initPath  string
)

const sampleRules = `# Rules are evaluated in order. Headers from every matching rule are
# applied; the first matching redirect or rewrite wins.
redirects:
  - source: /old-blog/:slug
    destination: /blog/:slug
    permanent: true

rewrites:
  beforeFiles:
    - source: /docs
      destination: /docs/index.html
  afterFiles:
    - source: /api/:path*
      destination: https://api.example.com/:path*
  fallback: []

headers:
  - source: /:path*
    headers:
      - key: X-Frame-Options
        value: DENY
  - source: /blog/:slug
    has:
      - type: cookie
        key: preview
    headers:
      - key: Cache-Control
        value: no-store
`

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "Path where to initialize (default: current directory)")
}

func runInit(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(initPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	configFile := filepath.Join(absPath, "config.yaml")
	rulesFile := filepath.Join(absPath, "rules.yaml")
	publicDir := filepath.Join(absPath, "public")

	for _, f := range []string{configFile, rulesFile} {
		if _, err := os.Stat(f); err == nil && !initForce {
			return fmt.Errorf("%s already exists. Use --force to overwrite", filepath.Base(f))
		}
	}

	if err := os.MkdirAll(publicDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", publicDir, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created directory: %s\n", publicDir)

	cfg := config.Default()
	cfg.PublicDir = "./public"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	header := "# edgerules configuration\n# Every key can be overridden with an EDGERULES_ environment variable,\n# for example EDGERULES_SERVER_PORT=9090.\n\n"
	if err := os.WriteFile(configFile, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", configFile)

	if err := os.WriteFile(rulesFile, []byte(sampleRules), 0644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created rules file: %s\n", rulesFile)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Initialization complete! You can now start the server with:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  cd %s\n", absPath)
	fmt.Fprintln(out, "  edgerules serve")
	fmt.Fprintln(out)

	return nil
}
