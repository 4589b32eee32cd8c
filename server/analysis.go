package server

import (
	"errors"
	"net/url"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/typer"
)

// Analysis is the inference result for one open document.
type Analysis struct {
	Tree        *ast.Tree
	Typer       *typer.Typer
	Diagnostics []protocol.Diagnostic
}

// Analyze decodes text and runs inference to its fixpoint. Decode errors
// leave Tree and Typer nil.
func Analyze(uri protocol.DocumentUri, text string) *Analysis {
	path := uriPath(uri)
	a := &Analysis{}
	tree, err := ast.Decode([]byte(text), path)
	if err != nil {
		a.Diagnostics = append(a.Diagnostics, diagnostic(ast.Position{}, err.Error()))
		return a
	}
	a.Tree = tree
	a.Typer = typer.New(tree, nil, typer.WithUnitName(typer.UnitName(path)))
	a.Typer.Infer(tree.Root())
	a.Typer.Resolve(true) // read back through Errors

	for _, err := range a.Typer.Errors() {
		var ie *typer.InferenceError
		if errors.As(err, &ie) {
			a.Diagnostics = append(a.Diagnostics, diagnostic(ie.Position, ie.Message))
			continue
		}
		a.Diagnostics = append(a.Diagnostics, diagnostic(ast.Position{}, err.Error()))
	}
	return a
}

// NodeAt returns the node that starts closest before pos on pos's line and
// has an inferred type.
func (a *Analysis) NodeAt(pos protocol.Position) ast.Node {
	if a.Tree == nil {
		return nil
	}
	line, col := int(pos.Line)+1, int(pos.Character)+1
	var best ast.Node
	a.Tree.Walk(func(n ast.Node) {
		p := n.Pos()
		if p.Line != line || p.Column > col || a.Typer.TypeOf(n.ID()) == nil {
			return
		}
		if best == nil || p.Column >= best.Pos().Column {
			best = n
		}
	})
	return best
}

func diagnostic(pos ast.Position, message string) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	start := protocol.Position{}
	if pos.Line > 0 {
		start.Line = protocol.UInteger(pos.Line - 1)
	}
	if pos.Column > 0 {
		start.Character = protocol.UInteger(pos.Column - 1)
	}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: start},
		Severity: &severity,
		Source:   &source,
		Message:  message,
	}
}

func uriPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Path == "" {
		return strings.TrimPrefix(string(uri), "file://")
	}
	return u.Path
}
