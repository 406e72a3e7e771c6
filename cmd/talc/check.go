package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/talc/install"
)

// checkCommand processes `talc check`: every method is lowered and every
// problem reported, but nothing is generated.
func checkCommand(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	common := addCommonFlags(fs)
	failFast := fs.Bool("fail-fast", false, "Stop at the first problem")
	fs.Parse(args)

	m, err := common.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	files, err := sourceFiles(m, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	c := install.NewCollector()
	c.FailFast = *failFast
	in := install.NewInstaller(newRegistry(), install.WithGlobals(globals(m)...))
	results, err := installFiles(in, c, files, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	methods := 0
	for _, r := range results {
		methods += len(r.Definitions)
	}
	code := report(c, results)
	if code == 0 {
		fmt.Printf("%d files, %d methods: ok\n", len(files), methods)
	}
	return code
}
