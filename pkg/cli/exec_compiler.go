package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/platinummonkey/prism/pkg/compilecache"
	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/observability"
)

// ExitDataErr is the exit status an external compiler uses to reject its
// input (EX_DATAERR)
const ExitDataErr = 65

// ExecCompiler runs an external command as the compiler. The command reads
// the resource on stdin and writes the compiled content to stdout. It sees
// the resource and group in PRISM_RESOURCE and PRISM_GROUP.
//
// Exit status ExitDataErr reports a source the command could not compile;
// its stderr, optionally prefixed with "line:column:", becomes the
// diagnostic.
type ExecCompiler struct {
	Command     []string
	ContentType string
	Resource    string
	Group       string
	// Sources are extra inputs besides Resource
	Sources []string
	// Dir is the working directory of the command
	Dir string
}

// NeedsSource implements compilecache.Compiler
func (c *ExecCompiler) NeedsSource() bool {
	return true
}

// Compile implements compilecache.Compiler
func (c *ExecCompiler) Compile(ctx context.Context, source []byte) (*compilecache.CompileResult, error) {
	if len(c.Command) == 0 {
		return nil, errdefs.Validation("cmd", "compiler command is required")
	}

	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), "PRISM_RESOURCE="+c.Resource, "PRISM_GROUP="+c.Group)
	cmd.Stdin = bytes.NewReader(source)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == ExitDataErr {
			return nil, parseDiagnostic(c.Resource, errOut.String())
		}
		return nil, fmt.Errorf("compiler %s failed: %w: %s", c.Command[0], err, strings.TrimSpace(errOut.String()))
	}

	if msg := strings.TrimSpace(errOut.String()); msg != "" {
		observability.FromContext(ctx, observability.Discard()).WithFields(map[string]interface{}{
			"compiler": c.Command[0],
			"stderr":   msg,
		}).Warn("Compiler wrote to stderr")
	}

	contentType := c.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &compilecache.CompileResult{
		Content:     append([]byte{}, out.Bytes()...),
		ContentType: contentType,
		Sources:     append([]string{c.Resource}, c.Sources...),
		Extra:       map[string]any{"compiler": c.Command[0]},
	}, nil
}

// parseDiagnostic turns compiler stderr into a ParseError
func parseDiagnostic(resource, stderr string) *errdefs.ParseError {
	msg := strings.TrimSpace(stderr)
	diag := &errdefs.ParseError{Resource: resource, Message: msg}
	parts := strings.SplitN(msg, ":", 3)
	if len(parts) < 3 {
		return diag
	}
	line, errLine := strconv.Atoi(strings.TrimSpace(parts[0]))
	col, errCol := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errLine != nil || errCol != nil {
		return diag
	}
	diag.Line, diag.Column = line, col
	diag.Message = strings.TrimSpace(parts[2])
	return diag
}
