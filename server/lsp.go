// Package server provides the talc language server: it installs every open
// document, publishes the problems found as diagnostics and shows the
// native names assigned to methods.
package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/talc/install"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native"
	"github.com/chazu/talc/native/closure"
	"github.com/chazu/talc/source"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "talc-lsp"

// Options configure how documents are installed.
type Options struct {
	Roots     []string // root class names, "Object" when empty
	Globals   []string
	Generator []native.Option
}

// LspServer installs open documents and reports what it finds.
type LspServer struct {
	opts Options
	log  commonlog.Logger

	mu   sync.Mutex
	docs map[string]*document // URI → last analysis

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

type document struct {
	text      string
	result    *install.Result
	collector *install.Collector
}

// NewLSP creates a new LSP server.
func NewLSP(opts Options) *LspServer {
	if len(opts.Roots) == 0 {
		opts.Roots = []string{"Object"}
	}
	s := &LspServer{
		opts:    opts,
		log:     commonlog.GetLogger("talc.lsp"),
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "talc LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{":"},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	doc := s.update(string(uri), params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, doc)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			doc := s.update(string(uri), whole.Text)
			s.publishDiagnostics(ctx, uri, doc)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update installs text into a fresh registry and a scratch function table
// and remembers the outcome.
func (s *LspServer) update(uri, text string) *document {
	reg := model.NewRegistry(s.opts.Roots...)
	in := install.NewInstaller(reg,
		install.WithGlobals(s.opts.Globals...),
		install.WithBackend(closure.NewTable(), s.opts.Generator...))
	c := install.NewCollector()
	result, err := in.Install(context.Background(), c, uri, text)
	if err != nil {
		s.log.Errorf("%s: %s", uri, err)
	}
	doc := &document{text: text, result: result, collector: c}

	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()
	return doc
}

func (s *LspServer) document(uri protocol.DocumentUri) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	return doc, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(doc, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return s.hover(doc, params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	doc, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	locations := s.definition(doc, uri, word)
	if len(locations) == 0 {
		return nil, nil
	}
	return locations, nil
}

// --- Document-backed logic ---

func (s *LspServer) complete(doc *document, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(strings.ToLower(label), lowerPrefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	// Class names
	for _, cls := range doc.result.Classes {
		detail := "class"
		if cls.Superclass() != nil {
			detail = fmt.Sprintf("class (< %s)", cls.Superclass().Name())
		}
		add(cls.Name(), detail, protocol.CompletionItemKindClass)
	}

	// Global names
	for _, name := range s.opts.Globals {
		add(name, "global", protocol.CompletionItemKindVariable)
	}

	// Selectors
	seen := make(map[string]bool)
	for _, d := range doc.result.Definitions {
		if sel := d.Selector(); !seen[sel] {
			seen[sel] = true
			add(sel, "selector", protocol.CompletionItemKindFunction)
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func (s *LspServer) hover(doc *document, pos protocol.Position) *protocol.Hover {
	word := extractWord(doc.text, pos)

	// Uppercase word → class summary
	if len(word) > 0 && unicode.IsUpper(rune(word[0])) {
		if cls, ok := doc.result.Class(word); ok {
			return markdown(classSummary(doc, cls))
		}
	}

	d, ok := doc.result.DefinitionAt(offsetAt(doc.text, pos))
	if !ok {
		return nil
	}
	return markdown(methodSummary(doc, d))
}

func classSummary(doc *document, cls *model.Class) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", cls.Name())
	if cls.Superclass() != nil {
		fmt.Fprintf(&b, " < %s", cls.Superclass().Name())
	}
	b.WriteString("\n\n")

	if vars := cls.InstVarNames(); len(vars) > 0 {
		fmt.Fprintf(&b, "Instance variables: `%s`\n\n", strings.Join(vars, " "))
	}
	fmt.Fprintf(&b, "%d instance methods, %d class methods",
		cls.Methods(model.InstanceSide).Len(), cls.Methods(model.ClassSide).Len())

	for _, side := range model.Sides {
		if rep, ok := doc.result.Report(cls.Name(), side); ok {
			fmt.Fprintf(&b, "\n\n%s", rep)
		}
	}

	// Show hierarchy
	supers := cls.Superclasses()
	if len(supers) > 0 {
		b.WriteString("\n\n**Hierarchy:** ")
		names := make([]string, len(supers))
		for i, sup := range supers {
			names[i] = sup.Name()
		}
		b.WriteString(strings.Join(names, " → "))
		fmt.Fprintf(&b, " → **%s**", cls.Name())
	}
	return b.String()
}

func methodSummary(doc *document, d *install.MethodDefinition) string {
	var b strings.Builder
	owner := d.Class
	if d.Side == model.ClassSide {
		owner += " class"
	}
	fmt.Fprintf(&b, "**%s>>%s**\n\n", owner, d.Selector())

	if name, ok := doc.collector.Annotation(d.Code(), install.NativeNameKey); ok {
		fmt.Fprintf(&b, "Native name: `%s`\n", name)
	} else if rep, ok := doc.result.Report(d.Class, d.Side); ok {
		switch rep.Status(d.Selector()) {
		case native.StatusSkipped:
			for _, m := range rep.Skipped {
				if m.Selector == d.Selector() {
					fmt.Fprintf(&b, "Not emitted: %s\n", m.Reason)
				}
			}
		default:
			fmt.Fprintf(&b, "Not emitted (%s)\n", rep.Phase)
		}
	}
	if category, ok := doc.collector.Annotation(d.Code(), install.CategoryKey); ok {
		fmt.Fprintf(&b, "\nCategory: %s\n", category)
	}
	return b.String()
}

func (s *LspServer) definition(doc *document, uri protocol.DocumentUri, word string) []protocol.Location {
	var locations []protocol.Location
	for _, d := range doc.result.Definitions {
		sel := d.Selector()
		if sel != word && !strings.HasPrefix(sel, word+":") {
			continue
		}
		rec := d.Code()
		start := rec.Origin
		stop := source.Position{Offset: start.Offset + len(rec.Tree.Source)}
		locations = append(locations, protocol.Location{
			URI:   uri,
			Range: toRange(d.SourceService().Translate(start, stop)),
		})
	}
	return locations
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, doc *document) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics(doc),
	})
}

func diagnostics(doc *document) []protocol.Diagnostic {
	out := []protocol.Diagnostic{}
	severity := protocol.DiagnosticSeverityError
	src := lspName
	for _, d := range doc.collector.Diagnostics() {
		out = append(out, protocol.Diagnostic{
			Range:    toRange(d.Location),
			Severity: &severity,
			Source:   &src,
			Message:  d.Message,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Range.Start.Line < out[j].Range.Start.Line
	})
	return out
}

func toRange(loc source.Location) protocol.Range {
	zero := func(n int) protocol.UInteger {
		if n < 1 {
			return 0
		}
		return protocol.UInteger(n - 1)
	}
	return protocol.Range{
		Start: protocol.Position{Line: zero(loc.StartLine), Character: zero(loc.StartColumn)},
		End:   protocol.Position{Line: zero(loc.EndLine), Character: zero(loc.EndColumn)},
	}
}

func markdown(value string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// --- Text extraction helpers ---

// offsetAt converts an editor position into a byte offset of text.
func offsetAt(text string, pos protocol.Position) int {
	offset := 0
	for line := protocol.UInteger(0); line < pos.Line; line++ {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return len(text)
		}
		offset += i + 1
	}
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text) - offset
	}
	return offset + min(int(pos.Character), end)
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == ':' {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Find start
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	// Find end
	end := col
	for end < len(line) {
		ch := rune(line[end])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			end++
		} else {
			break
		}
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
