package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal seams, replaced in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// prompter reads answers from the command's input. Secrets are read with
// echo disabled when stdin is a terminal.
type prompter struct {
	r   *bufio.Reader
	in  io.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{r: bufio.NewReader(in), in: in, out: out}
}

// Text prints prompt and returns one trimmed line.
func (p *prompter) Text(prompt string) (string, error) {
	if _, err := fmt.Fprintf(p.out, "%s: ", prompt); err != nil {
		return "", err
	}
	line, err := p.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Secret is Text without echo. The caller should wipe the result.
func (p *prompter) Secret(prompt string) ([]byte, error) {
	f, ok := p.in.(*os.File)
	if !ok || !isTerminal(int(f.Fd())) {
		s, err := p.Text(prompt)
		return []byte(s), err
	}

	if _, err := fmt.Fprintf(p.out, "%s: ", prompt); err != nil {
		return nil, err
	}
	b, err := readPassword(int(f.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return nil, err
	}
	return b, nil
}
