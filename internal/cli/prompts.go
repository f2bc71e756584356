package cli

import (
	"bufio"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"markyt-agent/internal/errors"
)

// errEndOfInput ends an interactive session.
var errEndOfInput = errors.New("end of input")

// lineReader yields user input one message at a time.
type lineReader interface {
	ReadLine() (string, error)
}

// surveyReader prompts on an interactive terminal.
type surveyReader struct {
	message string
}

func (r *surveyReader) ReadLine() (string, error) {
	var line string
	prompt := &survey.Input{
		Message: r.message,
		Help:    "Ask about a stock, e.g. \"¿Cómo va AAPL este trimestre?\". /reset clears the conversation, /exit quits.",
	}
	err := survey.AskOne(prompt, &line)
	if errors.Is(err, terminal.InterruptErr) || errors.Is(err, io.EOF) {
		return "", errEndOfInput
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// scannerReader reads newline separated messages from a pipe.
type scannerReader struct {
	scanner *bufio.Scanner
}

func newScannerReader(r io.Reader) *scannerReader {
	return &scannerReader{scanner: bufio.NewScanner(r)}
}

func (r *scannerReader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", errEndOfInput
	}
	return strings.TrimSpace(r.scanner.Text()), nil
}
