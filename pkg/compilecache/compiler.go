package compilecache

import (
	"context"
	"encoding/json"

	"github.com/platinummonkey/prism/pkg/errdefs"
)

// Asset is an auxiliary output written next to the compiled content
type Asset struct {
	// Path is relative to the artifact's asset directory
	Path    string
	Content []byte
}

// CompileResult is the output of a Compiler
type CompileResult struct {
	Content     []byte
	ContentType string
	// Sources lists every input the output depends on, as keys relative to
	// the project root. Empty means the resource itself.
	Sources []string
	Assets  []Asset
	// Extra is passed through to callers in its JSON form: values come back
	// as the types encoding/json decodes to, whether the artifact was just
	// compiled or served from cache. It must be JSON-encodable.
	Extra map[string]any
}

// Validate rejects results missing content or content type
func (r *CompileResult) Validate() error {
	if r == nil {
		return errdefs.Validation("result", "compiler returned no result")
	}
	if r.Content == nil {
		return errdefs.Validation("content", "compile result has no content")
	}
	if r.ContentType == "" {
		return errdefs.Validation("contentType", "compile result has no content type")
	}
	return nil
}

// normalizeExtra converts extra to the shape it has after a round trip
// through the meta record.
func normalizeExtra(extra map[string]any) (map[string]any, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return nil, errdefs.Validation("extra", "compile result extra is not JSON-encodable: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errdefs.Validation("extra", "compile result extra is not a JSON object: %v", err)
	}
	return out, nil
}

// Compiler turns a resource into compiled output. Compile returns
// *errdefs.ParseError when the source cannot be compiled.
type Compiler interface {
	// NeedsSource reports whether Compile wants the resource bytes
	NeedsSource() bool
	Compile(ctx context.Context, source []byte) (*CompileResult, error)
}

// CompileFunc adapts a function to the compile step
type CompileFunc func(ctx context.Context, source []byte) (*CompileResult, error)

type funcCompiler struct {
	fn          CompileFunc
	needsSource bool
}

func (c funcCompiler) NeedsSource() bool {
	return c.needsSource
}

func (c funcCompiler) Compile(ctx context.Context, source []byte) (*CompileResult, error) {
	return c.fn(ctx, source)
}

// SourceCompiler returns a Compiler that receives the resource bytes
func SourceCompiler(fn CompileFunc) Compiler {
	return funcCompiler{fn: fn, needsSource: true}
}

// GeneratorCompiler returns a Compiler that produces output without reading
// the resource; source is always nil
func GeneratorCompiler(fn CompileFunc) Compiler {
	return funcCompiler{fn: fn}
}

// CompilerFactory returns the compiler for a group
type CompilerFactory func(groupID string) (Compiler, error)
