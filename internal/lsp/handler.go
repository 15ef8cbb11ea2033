// Package lsp serves listing files over the Language Server Protocol:
// pipeline diagnostics, semantic tokens and keyword completion.
package lsp

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"golang.org/x/sync/singleflight"

	"luadec/internal/decompiler"
)

var log = commonlog.GetLogger("luadec.lsp")

// SemanticTokenTypes is the legend advertised to clients.
var SemanticTokenTypes = []string{
	"keyword",
	"variable",
	"parameter",
	"property",
	"enumMember",
	"number",
	"string",
	"comment",
	"operator",
	"macro",
}

// SemanticTokenModifiers is the modifier legend advertised to clients.
var SemanticTokenModifiers = []string{
	"declaration",
	"readonly",
	"static",
}

type document struct {
	version     protocol.Integer
	text        string
	diagnostics []protocol.Diagnostic
}

// Handler implements the LSP server handlers for listing files.
type Handler struct {
	opts decompiler.Options

	mu   sync.RWMutex
	docs map[string]*document

	// analyses coalesces concurrent requests for the same document version.
	analyses singleflight.Group
}

// NewHandler returns a handler that decompiles with opts.
func NewHandler(opts decompiler.Options) *Handler {
	return &Handler{
		opts: opts,
		docs: make(map[string]*document),
	}
}

// Initialize responds to the LSP client's initialize request and advertises the server's capabilities
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initialize")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider: ptrBool(false),
			},
			SemanticTokensProvider: &protocol.SemanticTokensOptions{
				Legend: protocol.SemanticTokensLegend{
					TokenTypes:     SemanticTokenTypes,
					TokenModifiers: SemanticTokenModifiers,
				},
				Full: ptrBool(true),
			},
		},
	}, nil
}

func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (h *Handler) Shutdown(ctx *glsp.Context) error {
	log.Info("shutdown")
	return nil
}

func (h *Handler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// TextDocumentDidOpen analyzes a newly opened listing.
func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := params.TextDocument
	log.Debugf("opened %s", doc.URI)
	return h.update(ctx, doc.URI, doc.Version, doc.Text)
}

// TextDocumentDidChange re-analyzes a listing after a full-text change.
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	text, ok := lastFullText(params.ContentChanges)
	if !ok {
		return fmt.Errorf("no full-text change for %s", params.TextDocument.URI)
	}
	return h.update(ctx, params.TextDocument.URI, params.TextDocument.Version, text)
}

// TextDocumentDidClose forgets the document and clears its diagnostics.
func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	h.mu.Lock()
	delete(h.docs, uri)
	h.mu.Unlock()
	publish(ctx, uri, []protocol.Diagnostic{})
	return nil
}

// TextDocumentCompletion offers the listing keywords.
func (h *Handler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	kind := protocol.CompletionItemKindKeyword
	items := make([]protocol.CompletionItem, 0, len(Keywords))
	for _, k := range Keywords {
		items = append(items, protocol.CompletionItem{Label: k, Kind: &kind})
	}
	return &protocol.CompletionList{IsIncomplete: false, Items: items}, nil
}

// TextDocumentSemanticTokensFull handles semantic token requests for the entire document
func (h *Handler) TextDocumentSemanticTokensFull(ctx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	uri := params.TextDocument.URI
	h.mu.RLock()
	doc, ok := h.docs[uri]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %s is not open", uri)
	}

	path, err := uriToPath(uri)
	if err != nil {
		return nil, err
	}
	tokens := collectSemanticTokens(path, doc.text)
	return &protocol.SemanticTokens{Data: encodeSemanticTokens(tokens)}, nil
}

// Diagnostics returns the last diagnostics published for uri.
func (h *Handler) Diagnostics(uri protocol.DocumentUri) ([]protocol.Diagnostic, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	doc, ok := h.docs[uri]
	if !ok {
		return nil, false
	}
	return doc.diagnostics, true
}

// Documents lists the open document URIs in sorted order.
func (h *Handler) Documents() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.docs))
	for uri := range h.docs {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

func (h *Handler) update(ctx *glsp.Context, uri protocol.DocumentUri, version protocol.Integer, text string) error {
	path, err := uriToPath(uri)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s@%d", uri, version)
	v, _, _ := h.analyses.Do(key, func() (any, error) {
		return Analyze(context.Background(), path, text, h.opts), nil
	})
	diagnostics := v.([]protocol.Diagnostic)

	h.mu.Lock()
	if doc, ok := h.docs[uri]; ok && doc.version > version {
		h.mu.Unlock()
		return nil
	}
	h.docs[uri] = &document{version: version, text: text, diagnostics: diagnostics}
	h.mu.Unlock()

	publish(ctx, uri, diagnostics)
	return nil
}

func lastFullText(changes []any) (string, bool) {
	for i := len(changes) - 1; i >= 0; i-- {
		switch c := changes[i].(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			return c.Text, true
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				return c.Text, true
			}
		}
	}
	return "", false
}

func publish(ctx *glsp.Context, uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	if ctx == nil || ctx.Notify == nil {
		return
	}
	log.Debugf("publishing %d diagnostics for %s", len(diagnostics), uri)
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// Convert URI to platform-local file path
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path
	if path == "" {
		path = u.Opaque
	}

	// On Windows, remove leading slash (e.g., /C:/...) → C:/...
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}

	return filepath.FromSlash(path), nil
}

func ptrBool(b bool) *bool {
	return &b
}

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
