// Package manifest handles talc.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"

	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/native"
)

// FileName is the name of the configuration file.
const FileName = "talc.toml"

// Backends selectable with generate.backend.
const (
	BackendGo    = "go"
	BackendTable = "table"
)

// Manifest represents a talc.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Source   Source   `toml:"source"`
	Generate Generate `toml:"generate"`
	Output   Output   `toml:"output"`
	Globals  Globals  `toml:"globals"`
	Log      Log      `toml:"log"`

	// Dir is the directory containing the talc.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"` // Class>>selector started by talc run
}

// Generate configures code generation.
type Generate struct {
	Exclude   []string `toml:"exclude"`
	DebugInfo bool     `toml:"debug-info"`
	Literals  string   `toml:"literals"` // inline or pool
	Calls     string   `toml:"calls"`    // dynamic or cached
	Workers   int      `toml:"workers"`
	Backend   string   `toml:"backend"` // go or table
}

// Output configures where generated code goes.
type Output struct {
	Dir     string `toml:"dir"`
	Package string `toml:"package"`
	Store   string `toml:"store"` // pass database, relative to Dir of the manifest
}

// Globals lists names visible to every method besides the classes.
type Globals struct {
	Names []string `toml:"names"`
}

// Log configures logging.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no talc.toml exists.
func Default(dir string) (*Manifest, error) {
	m := &Manifest{}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.Dir = abs
	m.defaults()
	m.applyEnv()
	return m, m.Validate()
}

// Load parses a talc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.defaults()
	m.applyEnv()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a talc.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) defaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Generate.Literals == "" {
		m.Generate.Literals = lower.InlineLiteralMode.String()
	}
	if m.Generate.Calls == "" {
		m.Generate.Calls = lower.DynamicCallMode.String()
	}
	if m.Generate.Backend == "" {
		m.Generate.Backend = BackendGo
	}
	if m.Output.Dir == "" {
		m.Output.Dir = "gen"
	}
	if m.Output.Package == "" {
		m.Output.Package = PackageName(m.Project.Name)
	}
	if m.Output.Store == "" {
		m.Output.Store = filepath.Join(".talc", "passes.db")
	}
}

// applyEnv overrides settings from TALC_* environment variables.
func (m *Manifest) applyEnv() {
	if env.Has("TALC_DEBUG_INFO") {
		m.Generate.DebugInfo = env.Bool("TALC_DEBUG_INFO")
	}
	m.Generate.Backend = env.Str("TALC_BACKEND", m.Generate.Backend)
	m.Output.Dir = env.Str("TALC_OUTPUT_DIR", m.Output.Dir)
	m.Log.Verbosity = env.Int("TALC_LOG_VERBOSITY", m.Log.Verbosity)
}

// Validate checks the settings that name alternatives.
func (m *Manifest) Validate() error {
	if _, err := lower.ParseLiteralMode(m.Generate.Literals); err != nil {
		return err
	}
	if _, err := lower.ParseCallMode(m.Generate.Calls); err != nil {
		return err
	}
	switch m.Generate.Backend {
	case BackendGo, BackendTable:
	default:
		return fmt.Errorf("unknown backend %q", m.Generate.Backend)
	}
	if m.Generate.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", m.Generate.Workers)
	}
	return nil
}

// GeneratorOptions returns the generator options the manifest selects.
func (m *Manifest) GeneratorOptions() ([]native.Option, error) {
	literals, err := lower.ParseLiteralMode(m.Generate.Literals)
	if err != nil {
		return nil, err
	}
	calls, err := lower.ParseCallMode(m.Generate.Calls)
	if err != nil {
		return nil, err
	}
	return []native.Option{
		native.WithPolicy(native.ExcludeNames(m.Generate.Exclude...)),
		native.WithDebugInfo(m.Generate.DebugInfo),
		native.WithLiteralEncoding(literals),
		native.WithCallEncoding(calls),
		native.WithWorkers(m.Generate.Workers),
	}, nil
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// OutputDir returns the absolute output directory.
func (m *Manifest) OutputDir() string {
	return m.resolve(m.Output.Dir)
}

// StorePath returns the absolute path of the pass database.
func (m *Manifest) StorePath() string {
	return m.resolve(m.Output.Store)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
