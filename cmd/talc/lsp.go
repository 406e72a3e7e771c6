package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/talc/server"
)

// lspCommand processes `talc lsp`.
func lspCommand(args []string) int {
	fs := flag.NewFlagSet("lsp", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	m, err := common.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	opts, err := m.GeneratorOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	s := server.NewLSP(server.Options{
		Globals:   globals(m),
		Generator: opts,
	})
	if err := s.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
		return 1
	}
	return 0
}
