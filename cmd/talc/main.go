// talc CLI - validates class definition files and generates native code
// for their methods
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/talc/install"
	"github.com/chazu/talc/manifest"
	"github.com/chazu/talc/model"

	_ "github.com/tliron/commonlog/simple"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: talc <command> [options] [paths...]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  build   Generate native code for every class\n")
	fmt.Fprintf(os.Stderr, "  check   Validate every method without generating code\n")
	fmt.Fprintf(os.Stderr, "  run     Generate into a function table and send an entry message\n")
	fmt.Fprintf(os.Stderr, "  lsp     Start the language server on stdio\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  talc check src/...                 # Validate src/ recursively\n")
	fmt.Fprintf(os.Stderr, "  talc build -o gen -incremental     # Build the configured source dirs\n")
	fmt.Fprintf(os.Stderr, "  talc run -entry 'Main class>>start' main.mag\n")
	fmt.Fprintf(os.Stderr, "\nRun 'talc <command> -h' for the options of a command.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	var code int
	switch cmd {
	case "build":
		code = buildCommand(args)
	case "check":
		code = checkCommand(args)
	case "run":
		code = runCommand(args)
	case "lsp":
		code = lspCommand(args)
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "talc: unknown command %q\n\n", cmd)
		usage()
		code = 2
	}
	os.Exit(code)
}

// commonFlags are shared by every command that reads sources.
type commonFlags struct {
	config  *string
	verbose *int
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:  fs.String("config", ".", "Directory to search upwards for talc.toml"),
		verbose: fs.Int("v", -1, "Log verbosity (overrides the manifest)"),
	}
}

// setup loads the configuration and configures logging.
func (f commonFlags) setup() (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(*f.config)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if m, err = manifest.Default(*f.config); err != nil {
			return nil, err
		}
	}
	if *f.verbose >= 0 {
		m.Log.Verbosity = *f.verbose
	}
	commonlog.Configure(m.Log.Verbosity, nil)
	return m, nil
}

// sourceFiles returns the .mag files named by paths, or of the configured
// source directories when no path is given. A path ending in /... is
// searched recursively.
func sourceFiles(m *manifest.Manifest, paths []string) ([]string, error) {
	if len(paths) == 0 {
		for _, dir := range m.SourceDirPaths() {
			paths = append(paths, dir+"/...")
		}
	}
	var files []string
	for _, path := range paths {
		found, err := collectPath(path)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func collectPath(path string) ([]string, error) {
	// Check for recursive pattern
	recursive := false
	if strings.HasSuffix(path, "/...") {
		recursive = true
		path = strings.TrimSuffix(path, "/...")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access %q: %w", path, err)
	}

	if !info.IsDir() {
		if !strings.HasSuffix(path, ".mag") {
			return nil, fmt.Errorf("%q is not a .mag file", path)
		}
		return []string{path}, nil
	}

	var files []string
	if recursive {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(p, ".mag") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %q: %w", path, err)
		}
		return files, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".mag") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	return files, nil
}

// installFiles installs files in order into one registry. Later files may
// subclass classes of earlier ones. A non-nil after runs once per file,
// before the next file adds its classes.
func installFiles(in *install.Installer, c *install.Collector, files []string, after func(*install.Result) error) ([]*install.Result, error) {
	var results []*install.Result
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return results, err
		}
		result, err := in.Install(context.Background(), c, file, string(content))
		if err != nil {
			return results, fmt.Errorf("installing %s: %w", file, err)
		}
		results = append(results, result)
		if after != nil {
			if err := after(result); err != nil {
				return results, err
			}
		}
		if c.Stopped() {
			break
		}
	}
	return results, nil
}

// globals returns the configured global names plus those the runtime
// always provides.
func globals(m *manifest.Manifest) []string {
	return append([]string{"Transcript"}, m.Globals.Names...)
}

// globalNames returns the names methods are currently lowered against: the
// configured globals plus every class and pool defined in reg.
func globalNames(reg *model.Registry, configured []string) []string {
	return append(append([]string(nil), configured...), reg.Names()...)
}

func newRegistry() *model.Registry {
	return model.NewRegistry("Object")
}

// report prints the diagnostics and returns the exit status.
func report(c *install.Collector, results []*install.Result) int {
	code := 0
	for _, d := range c.Diagnostics() {
		fmt.Fprintln(os.Stderr, d)
		code = 1
	}
	for _, r := range results {
		if r.Aborted() {
			code = 1
		}
	}
	return code
}
