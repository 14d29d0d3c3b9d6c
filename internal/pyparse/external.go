package pyparse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// perCallTimeout bounds a single external parser invocation, per spec §5:
// "the external Python parser is invoked with a hard wall-clock timeout
// (≈3 s)". Mirrors the teacher's perCallTimeout for its LLM validators
// (internal/conflicts/validator.go), applied here to a subprocess instead
// of an HTTP call.
const perCallTimeout = 3 * time.Second

// maxOutputBytes bounds the external process's stdout, per spec §5
// ("bounded output size (≈4 MiB)"). Output beyond this is treated as if
// the process were unavailable.
const maxOutputBytes = 4 * 1024 * 1024

// ErrParserUnavailable is returned when the external process could not be
// spawned, timed out, or exceeded the output bound — callers fall back
// per the configured Mode.
var ErrParserUnavailable = errors.New("pyparse: external parser unavailable")

type externalRequest struct {
	Action  string `json:"action"`
	Content string `json:"content"`
	Parser  string `json:"parser"`
}

type externalSymbol struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type externalResponse struct {
	OK      bool             `json:"ok"`
	Parser  string           `json:"parser"`
	Symbols []externalSymbol `json:"symbols"`
	Error   string           `json:"error"`
}

// ExternalParser invokes an external AST-backed parser process once per
// call: `<bin> <args...>` reading the JSON request on stdin and writing
// the JSON response on stdout, per spec §4.1's small JSON protocol.
type ExternalParser struct {
	Bin  string
	Args []string
	Mode Mode
}

// NewExternalParser constructs an ExternalParser for the given binary.
func NewExternalParser(bin string, mode Mode, args ...string) *ExternalParser {
	if mode == "" {
		mode = ModeAuto
	}
	return &ExternalParser{Bin: bin, Args: args, Mode: mode}
}

// ParseTopLevel implements Parser. On timeout, oversize output, a spawn
// failure, or a response reporting parser_unavailable, it returns
// ErrParserUnavailable so the caller can fall back; a genuine syntax error
// is reported as Result{ParseError: true}, nil.
func (p *ExternalParser) ParseTopLevel(ctx context.Context, content string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	reqBody, err := json.Marshal(externalRequest{
		Action:  "parse_top_level",
		Content: content,
		Parser:  string(p.Mode),
	})
	if err != nil {
		return Result{}, fmt.Errorf("pyparse: marshal request: %w", err)
	}

	cmd := exec.CommandContext(callCtx, p.Bin, p.Args...)
	cmd.Stdin = bytes.NewReader(reqBody)

	var stdout bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, max: maxOutputBytes}

	runErr := cmd.Run()
	if callCtx.Err() != nil {
		return Result{}, ErrParserUnavailable
	}
	if errors.Is(runErr, errOutputTooLarge) {
		return Result{}, ErrParserUnavailable
	}
	if runErr != nil {
		return Result{}, ErrParserUnavailable
	}

	var resp externalResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, ErrParserUnavailable
	}

	if !resp.OK {
		if resp.Error == "syntax_error" {
			return Result{ParseError: true}, nil
		}
		// "parser_unavailable" or any other reported error: fall back.
		return Result{}, ErrParserUnavailable
	}

	spans := make([]rawSpan, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		spans = append(spans, rawSpan{Kind: s.Kind, Name: s.Name, Start: s.Start})
	}
	return extendSpans(spans, content), nil
}

var errOutputTooLarge = errors.New("pyparse: external parser output exceeded bound")

// limitedWriter caps the number of bytes written before reporting
// errOutputTooLarge, so a misbehaving parser process cannot exhaust memory.
type limitedWriter struct {
	w   io.Writer
	max int
	n   int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n+len(p) > l.max {
		return 0, errOutputTooLarge
	}
	n, err := l.w.Write(p)
	l.n += n
	return n, err
}
