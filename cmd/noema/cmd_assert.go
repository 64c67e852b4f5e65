package main

import (
	"fmt"
	"os"
	"time"

	"noema/internal/parser"
	"noema/internal/router"

	"github.com/spf13/cobra"
)

var assertTimeout time.Duration

var assertCmd = &cobra.Command{
	Use:   "assert <file>",
	Short: "Parse a .kif file and route every top-level form into a fresh kernel",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssert,
}

func runAssert(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	forms, err := parser.ParseAll(string(content))
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	k := buildKernel(cfg)
	k.start()
	defer k.stop()

	var rejected int
	for _, form := range forms {
		if err := k.router.Route(form, router.SourceFile, path); err != nil {
			fmt.Fprintf(os.Stderr, "rejected %s: %v\n", form.KIFString(), err)
			rejected++
		}
	}

	time.Sleep(assertTimeout)
	fmt.Printf("asserted %d form(s), %d rejected, knowledge base holds %d assertion(s)\n",
		len(forms)-rejected, rejected, k.kb.Size())
	return nil
}
