package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"

[source]
dirs = ["src", "lib"]
entry = "Main>>start"

[generate]
exclude = ["Scratch", "Experiment"]
debug-info = true
literals = "pool"
calls = "cached"
workers = 4
backend = "table"

[output]
dir = "out"
package = "things"
store = "cache/passes.db"

[globals]
names = ["Transcript", "Smalltalk"]

[log]
verbosity = 2
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Source.Entry != "Main>>start" {
		t.Errorf("source entry = %q, want Main>>start", m.Source.Entry)
	}
	if len(m.Generate.Exclude) != 2 || m.Generate.Exclude[1] != "Experiment" {
		t.Errorf("exclude = %v", m.Generate.Exclude)
	}
	if !m.Generate.DebugInfo {
		t.Error("debug-info = false, want true")
	}
	if m.Generate.Literals != "pool" || m.Generate.Calls != "cached" {
		t.Errorf("encodings = %s/%s, want pool/cached", m.Generate.Literals, m.Generate.Calls)
	}
	if m.Generate.Workers != 4 {
		t.Errorf("workers = %d, want 4", m.Generate.Workers)
	}
	if m.Generate.Backend != BackendTable {
		t.Errorf("backend = %q, want table", m.Generate.Backend)
	}
	if m.Output.Package != "things" {
		t.Errorf("package = %q, want things", m.Output.Package)
	}
	if got := m.OutputDir(); got != filepath.Join(m.Dir, "out") {
		t.Errorf("OutputDir() = %q", got)
	}
	if got := m.StorePath(); got != filepath.Join(m.Dir, "cache", "passes.db") {
		t.Errorf("StorePath() = %q", got)
	}
	if len(m.Globals.Names) != 2 {
		t.Errorf("globals = %v", m.Globals.Names)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}

	opts, err := m.GeneratorOptions()
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) == 0 {
		t.Error("no generator options")
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal-app"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Generate.Literals != "inline" || m.Generate.Calls != "dynamic" {
		t.Errorf("default encodings = %s/%s, want inline/dynamic", m.Generate.Literals, m.Generate.Calls)
	}
	if m.Generate.Backend != BackendGo {
		t.Errorf("default backend = %q, want go", m.Generate.Backend)
	}
	if m.Output.Dir != "gen" || m.Output.Package != "minimalapp" {
		t.Errorf("default output = %+v", m.Output)
	}
}

func TestLoadManifestRejectsUnknownSettings(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"literals", "[generate]\nliterals = \"sideways\"\n"},
		{"calls", "[generate]\ncalls = \"telepathic\"\n"},
		{"backend", "[generate]\nbackend = \"jvm\"\n"},
		{"workers", "[generate]\nworkers = -1\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tc.content)
			if _, err := Load(dir); err == nil {
				t.Error("Load succeeded, want an error")
			}
		})
	}
}

func TestLoadManifestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[generate]
backend = "go"
debug-info = false

[output]
dir = "gen"
`)
	t.Setenv("TALC_DEBUG_INFO", "true")
	t.Setenv("TALC_BACKEND", "table")
	t.Setenv("TALC_OUTPUT_DIR", "elsewhere")
	t.Setenv("TALC_LOG_VERBOSITY", "3")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Generate.DebugInfo {
		t.Error("TALC_DEBUG_INFO not applied")
	}
	if m.Generate.Backend != BackendTable {
		t.Errorf("backend = %q, want table", m.Generate.Backend)
	}
	if m.Output.Dir != "elsewhere" {
		t.Errorf("output dir = %q, want elsewhere", m.Output.Dir)
	}
	if m.Log.Verbosity != 3 {
		t.Errorf("verbosity = %d, want 3", m.Log.Verbosity)
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest when no %s exists", FileName)
	}
}

func TestDefault(t *testing.T) {
	m, err := Default(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if m.Output.Package != "generated" {
		t.Errorf("package = %q, want generated", m.Output.Package)
	}
	if _, err := m.GeneratorOptions(); err != nil {
		t.Error(err)
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "/abs/lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/src" {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/abs/lib" {
		t.Errorf("paths[1] = %q, want /abs/lib", paths[1])
	}
}

func TestGeneratorOptions_ExcludesConfiguredClasses(t *testing.T) {
	m := &Manifest{Generate: Generate{Exclude: []string{"Scratch"}}}
	m.defaults()
	opts, err := m.GeneratorOptions()
	if err != nil {
		t.Fatal(err)
	}
	cls := model.NewClass("Scratch", nil)
	cls.Freeze()
	report, err := native.New(nil, opts...).Generate(cls, model.InstanceSide)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Excluded {
		t.Errorf("report = %s, want excluded", report)
	}
}
