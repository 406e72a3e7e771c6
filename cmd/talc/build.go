package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/talc/install"
	"github.com/chazu/talc/manifest"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native"
	"github.com/chazu/talc/native/closure"
	"github.com/chazu/talc/native/gosource"
	"github.com/chazu/talc/store"
)

// buildCommand processes `talc build`.
// Usage:
//
//	talc build                          # configured source dirs into gen/
//	talc build -o out -backend go a.mag
//	talc build -incremental             # skip classes unchanged since their last pass
func buildCommand(args []string) int {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	common := addCommonFlags(fs)
	backend := fs.String("backend", "", "Backend: go or table (default from talc.toml)")
	output := fs.String("o", "", "Output directory (default from talc.toml)")
	incremental := fs.Bool("incremental", false, "Skip classes whose passes are recorded as unchanged")
	fs.Parse(args)

	m, err := common.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	if *backend != "" {
		m.Generate.Backend = *backend
	}
	if *output != "" {
		m.Output.Dir = *output
	}
	if err := m.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	files, err := sourceFiles(m, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	opts, err := m.GeneratorOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	st, err := store.Open(m.StorePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening pass store: %v\n", err)
		return 1
	}
	defer st.Close()

	reg := newRegistry()
	configured := globals(m)
	current := func() []string { return globalNames(reg, configured) }
	if *incremental {
		opts = append(opts, native.WithPolicy(skipUnchanged(st, native.ExcludeNames(m.Generate.Exclude...), current)))
	}

	var pkg *gosource.Package
	var target native.Backend
	switch m.Generate.Backend {
	case manifest.BackendGo:
		pkg = gosource.NewPackage(m.Output.Package)
		target = pkg
	default:
		target = closure.NewTable()
	}

	c := install.NewCollector()
	in := install.NewInstaller(reg,
		install.WithGlobals(configured...),
		install.WithBackend(target, opts...))
	record := func(r *install.Result) error {
		if err := recordPasses(st, r, current()); err != nil {
			return fmt.Errorf("recording passes: %w", err)
		}
		return nil
	}
	results, err := installFiles(in, c, files, record)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if pkg != nil {
		paths, err := pkg.WriteDir(m.OutputDir())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing generated code: %v\n", err)
			return 1
		}
		for _, p := range paths {
			fmt.Printf("wrote %s\n", p)
		}
	}
	for _, r := range results {
		for _, reports := range r.Reports {
			for _, rep := range reports {
				if rep != nil {
					fmt.Println(rep)
				}
			}
		}
	}
	return report(c, results)
}

// skipUnchanged excludes classes both of whose sides were generated
// successfully from their current definition against the current global
// names. A removed global changes the fingerprint, so the methods using it
// are lowered again and fail.
func skipUnchanged(st *store.Store, base native.Policy, globals func() []string) native.Policy {
	return native.PolicyFunc(func(cls *model.Class) bool {
		if !base.Generate(cls) {
			return false
		}
		names := globals()
		for _, side := range model.Sides {
			unchanged, err := st.Unchanged(cls, side, names)
			if err != nil || !unchanged {
				return true
			}
		}
		return false
	})
}

// recordPasses stores every pass of r that ran. It must be called before
// the registry grows, so globals are those the passes were lowered against.
func recordPasses(st *store.Store, r *install.Result, globals []string) error {
	for i, cls := range r.Classes {
		if i >= len(r.Reports) {
			break
		}
		for _, side := range model.Sides {
			rep := r.Reports[i][side]
			if rep == nil || rep.Excluded {
				continue
			}
			if _, err := st.Record(cls, side, globals, rep); err != nil {
				return err
			}
		}
	}
	return nil
}
