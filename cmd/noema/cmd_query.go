package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"noema/internal/parser"
	"noema/internal/router"

	"github.com/spf13/cobra"
)

var queryTimeout time.Duration

var queryCmd = &cobra.Command{
	Use:   "query <pattern>",
	Short: "Load the configured rules directory and run find_instances_of_pattern against it",
	Long: `Builds a fresh kernel, loads every .kif file in the configured rules
directory, waits for derivation to settle, then runs find_instances_of_pattern
against the resulting knowledge base and prints every match.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	pattern, err := parser.ParseOne(args[0])
	if err != nil {
		return fmt.Errorf("parse pattern: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	k := buildKernel(cfg)
	k.start()
	defer k.stop()

	if cfg.RulesDir != "" {
		if err := loadRulesDir(k, cfg.RulesDir); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	time.Sleep(queryTimeout)

	matches := k.kb.FindInstancesOfPattern(pattern, false)
	for _, a := range matches {
		fmt.Println(a.KIF.KIFString())
	}
	fmt.Fprintf(os.Stderr, "%d match(es)\n", len(matches))
	return nil
}

// loadRulesDir routes every top-level form of every .kif file directly
// under dir, the one-shot counterpart of internal/ruleswatcher's ongoing
// watch used by `serve`.
func loadRulesDir(k *kernel, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read rules dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".kif" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: read %s: %v\n", path, err)
			continue
		}
		forms, err := parser.ParseAll(string(content))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: parse %s: %v\n", path, err)
			continue
		}
		for _, form := range forms {
			if err := k.router.Route(form, router.SourceFile, entry.Name()); err != nil {
				fmt.Fprintf(os.Stderr, "rejected %s: %v\n", form.KIFString(), err)
			}
		}
	}
	return nil
}
