package server

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/larklang/lark/compiler"
	"github.com/larklang/lark/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "lark-lsp"

// LspServer bridges LSP editor features to the Lark compiler.
//
// Diagnostics come straight from the compiler's error records, so the
// editor sees exactly the errors a command-line compile would print. The
// VM is single-threaded; all access goes through mu.
type LspServer struct {
	mu   sync.Mutex
	vm   *vm.VM
	docs map[string]string // URI -> full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server with a fresh VM for completion data.
func NewLSP() *LspServer {
	s := &LspServer{
		vm:      vm.NewVM(),
		docs:    make(map[string]string),
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
	commonlog.NewInfoMessage(0, "Lark LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
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
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text.
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document.
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Diagnostics ---

// publishDiagnostics compiles the document against a scratch VM. When the
// compile succeeds the scratch VM replaces the session VM as the completion
// source; a buffer with errors leaves the session VM unchanged.
func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	scratch := vm.NewVM()
	_, err := compiler.CompileWithDiagnostics(scratch, text, io.Discard)

	if err == nil {
		// The document compiled: its globals and selectors become the
		// completion source.
		s.mu.Lock()
		s.vm = scratch
		s.mu.Unlock()
	}

	var diagnostics []protocol.Diagnostic
	var list *compiler.ErrorList
	if errors.As(err, &list) {
		severity := protocol.DiagnosticSeverityError
		source := lspName
		for _, ce := range list.Errors {
			line := uint32(0)
			if ce.Line > 0 {
				line = uint32(ce.Line - 1)
			}
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Range: protocol.Range{
					Start: protocol.Position{Line: line, Character: 0},
					End:   protocol.Position{Line: line, Character: uint32(len(ce.Lexeme))},
				},
				Severity: &severity,
				Source:   &source,
				Message:  ce.Message,
			})
		}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, pos)
	if prefix == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete(prefix), nil
}

func (s *LspServer) complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)

	// Global names.
	for _, name := range s.vm.GlobalSymbols.All() {
		if strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			kind := protocol.CompletionItemKindVariable
			detail := "global"
			if _, isClass := s.vm.Object(s.vm.GlobalValue(s.vm.GlobalSymbols.Find(name))).(*vm.ObjClass); isClass {
				kind = protocol.CompletionItemKindClass
				detail = "class"
			}
			nameCopy := name
			items = append(items, protocol.CompletionItem{
				Label:      name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}
	}

	// Method selectors. The arity spaces are a wire convention, not
	// something a user types; strip them and show the arity instead.
	seen := make(map[string]bool)
	for _, sel := range s.vm.Methods.All() {
		base := strings.TrimRight(sel, " ")
		arity := len(sel) - len(base)
		if base == "" || !strings.HasPrefix(strings.ToLower(base), lowerPrefix) {
			continue
		}
		label := fmt.Sprintf("%s/%d", base, arity)
		if seen[label] {
			continue
		}
		seen[label] = true

		kind := protocol.CompletionItemKindMethod
		detail := fmt.Sprintf("method (%d args)", arity)
		insert := base
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &insert,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	word := extractWord(text, pos)
	if word == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hover(word), nil
}

func (s *LspServer) hover(word string) *protocol.Hover {
	// Uppercase word: class lookup through the globals.
	if len(word) > 0 && unicode.IsUpper(rune(word[0])) {
		symbol := s.vm.GlobalSymbols.Find(word)
		if symbol == -1 {
			return nil
		}
		cls, ok := s.vm.Object(s.vm.GlobalValue(symbol)).(*vm.ObjClass)
		if !ok {
			return nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "**%s**", word)
		if cls.Superclass != nil && cls.Superclass.Name != "" {
			fmt.Fprintf(&b, " is %s", cls.Superclass.Name)
		}
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%d methods", cls.NumLocalMethods())
		if cls.Metaclass != nil {
			if n := cls.Metaclass.NumLocalMethods(); n > 0 {
				fmt.Fprintf(&b, ", %d static methods", n)
			}
		}

		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: b.String(),
			},
		}
	}

	return nil
}

// --- Text extraction helpers ---

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

	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

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
