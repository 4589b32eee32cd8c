// Package server provides a language server for tree documents. It reports
// decode and inference errors as diagnostics and shows inferred types on
// hover.
package server

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/types"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "garnet-lsp"

// LspServer keeps the latest analysis of every open document.
type LspServer struct {
	mu       sync.Mutex
	analyses map[protocol.DocumentUri]*Analysis
	docs     map[protocol.DocumentUri]string

	handler protocol.Handler
	server  *glspserver.Server
	version string
	log     commonlog.Logger
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		analyses: make(map[protocol.DocumentUri]*Analysis),
		docs:     make(map[protocol.DocumentUri]string),
		version:  "0.1.0",
		log:      commonlog.GetLogger("garnet.lsp"),
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
	s.log.Info("garnet LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"\""},
	}
	capabilities.HoverProvider = true

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
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.update(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, uri)
	delete(s.analyses, uri)
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update re-analyzes a document and publishes its diagnostics.
func (s *LspServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	a := Analyze(uri, text)
	s.log.Debugf("analyzed %s: %d diagnostics", uri, len(a.Diagnostics))

	s.mu.Lock()
	s.docs[uri] = text
	s.analyses[uri] = a
	s.mu.Unlock()

	diagnostics := a.Diagnostics
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func (s *LspServer) lookup(uri protocol.DocumentUri) (*Analysis, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[uri]
	return a, s.docs[uri], ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	a, text, ok := s.lookup(params.TextDocument.URI)
	if !ok || a.Typer == nil {
		return nil, nil
	}
	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(a, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	a, _, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return hover(a, params.Position), nil
}

// complete lists type names and the methods learned on the unit's own type
// that start with prefix.
func complete(a *Analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	reg := a.Typer.Registry()

	for _, name := range reg.Names() {
		if !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			continue
		}
		kind := protocol.CompletionItemKindClass
		detail := "type"
		if t := reg.Lookup(name); t.IsPrimitive() {
			kind = protocol.CompletionItemKindKeyword
			detail = "primitive"
		} else if super := t.Superclass(); super != nil {
			detail = fmt.Sprintf("type (< %s)", super.Name())
		}
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	seen := make(map[string]bool)
	for _, owner := range []*types.Type{a.Typer.SelfType(), a.Typer.SelfType().Meta()} {
		for _, m := range reg.Methods(owner) {
			if seen[m.Name] || !strings.HasPrefix(strings.ToLower(m.Name), lowerPrefix) {
				continue
			}
			seen[m.Name] = true
			kind := protocol.CompletionItemKindMethod
			detail := m.String()
			nameCopy := m.Name
			items = append(items, protocol.CompletionItem{
				Label:      m.Name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// hover shows the inferred type of the node at pos.
func hover(a *Analysis, pos protocol.Position) *protocol.Hover {
	n := a.NodeAt(pos)
	if n == nil {
		return nil
	}
	typ := a.Typer.TypeOf(n.ID())

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", ast.Kind(n))
	if named, ok := n.(ast.Named); ok && named.NodeName() != "" {
		fmt.Fprintf(&b, " `%s`", named.NodeName())
	}
	fmt.Fprintf(&b, ": `%s`", typ)
	if def, ok := n.(ast.Definition); ok {
		if m := a.Typer.MethodType(def); m != nil {
			fmt.Fprintf(&b, "\n\n%s", m)
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// --- Text extraction helpers ---

// extractPrefix returns the identifier fragment before the cursor for
// completion.
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
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
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

func boolPtr(b bool) *bool {
	return &b
}
