// Package authprompt implements the Authorizer port as a terminal prompt: it
// opens the authorization page in the browser and asks the user to paste the
// URL they were redirected to.
package authprompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/cli/browser"
	"golang.org/x/term"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Authorizer = (*Prompt)(nil)

// ErrNoToken is returned when the pasted redirect carries no access_token.
var ErrNoToken = errors.New("redirect URL has no access_token")

// Prompt asks for authorization on a terminal.
type Prompt struct {
	in      io.Reader
	out     io.Writer
	openURL func(string) error
	// readSecret reads a line without echo; nil when in is not a terminal.
	readSecret func() (string, error)
}

// New creates a Prompt bound to the process's stdin and stderr. Input is
// read without echo when stdin is a terminal, since it contains the token.
func New() *Prompt {
	p := &Prompt{in: os.Stdin, out: os.Stderr, openURL: browser.OpenURL}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		p.readSecret = func() (string, error) {
			b, err := term.ReadPassword(fd)
			_, _ = fmt.Fprintln(p.out)
			return string(b), err
		}
	}
	return p
}

// NewWithIO creates a Prompt on arbitrary streams. The browser is not opened.
func NewWithIO(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out, openURL: func(string) error { return nil }}
}

// Authorize shows authURL, waits for the pasted redirect and returns its
// fragment parameters. An empty answer counts as declining.
func (p *Prompt) Authorize(ctx context.Context, authURL string) (url.Values, error) {
	_, _ = fmt.Fprintf(p.out, "Open this page and approve access:\n\n  %s\n\n", authURL)
	if err := p.openURL(authURL); err != nil {
		slog.Debug("could not open browser", "error", err)
	}
	_, _ = fmt.Fprint(p.out, "Paste the address of the page you were redirected to (empty to cancel): ")

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.readLine()
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return nil, fmt.Errorf("read authorization answer: %w", a.err)
		}
		line := strings.TrimSpace(a.line)
		if line == "" {
			return nil, model.ErrAuthDeclined
		}
		return ParseRedirect(line)
	}
}

func (p *Prompt) readLine() (string, error) {
	if p.readSecret != nil {
		return p.readSecret()
	}
	return bufio.NewReader(p.in).ReadString('\n')
}

// ParseRedirect extracts the implicit-flow parameters from a redirect URL or
// a bare fragment ("access_token=...&expires_in=...&user_id=...").
func ParseRedirect(raw string) (url.Values, error) {
	fragment := raw
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		fragment = raw[i+1:]
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return nil, fmt.Errorf("parse redirect fragment: %w", err)
	}

	if values.Get("error") != "" {
		return nil, fmt.Errorf("%w: %s", model.ErrAuthDeclined, values.Get("error_description"))
	}
	if values.Get("access_token") == "" {
		return nil, ErrNoToken
	}
	return values, nil
}
