// Package clip copies a final answer to the clipboard.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is how the text was made available.
type Method string

const (
	MethodNative Method = "native" // OS clipboard
	MethodOSC52  Method = "osc52"  // terminal escape sequence
	MethodFile   Method = "file"   // temp file, when no clipboard was reachable
)

// Result reports where the text went.
type Result struct {
	Method   Method
	FilePath string // set for MethodFile
}

// OSC52LimitBytes caps the escape-sequence payload; many terminals drop larger ones.
const OSC52LimitBytes = 100_000

// Copier tries the native clipboard, then OSC52 on Terminal, then a temp file.
type Copier struct {
	Native   func(text string) error
	Terminal io.Writer
	IsTTY    func(w io.Writer) bool
	TempDir  string
	Getenv   func(string) string
}

// New returns a Copier that writes OSC52 sequences to stderr.
func New() *Copier {
	return &Copier{
		Native:   atotto.WriteAll,
		Terminal: os.Stderr,
		IsTTY:    isTerminal,
		Getenv:   os.Getenv,
	}
}

// Copy makes text available and reports how.
func (c *Copier) Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}
	if c.Native != nil && !atotto.Unsupported {
		if err := c.Native(text); err == nil {
			return Result{Method: MethodNative}, nil
		}
	}
	if err := c.osc52(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := c.writeTemp(text)
	if err != nil {
		return Result{}, fmt.Errorf("copying answer: %w", err)
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

func (c *Copier) osc52(text string) error {
	if c.Terminal == nil || c.IsTTY == nil || !c.IsTTY(c.Terminal) {
		return errors.New("no terminal")
	}
	if len(text) > OSC52LimitBytes {
		return fmt.Errorf("answer too large for OSC52 (%d bytes)", len(text))
	}

	seq := osc52.New(text).Limit(OSC52LimitBytes)
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	switch {
	case getenv("TMUX") != "":
		seq = seq.Tmux()
	case getenv("STY") != "":
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(c.Terminal)
	return err
}

func (c *Copier) writeTemp(text string) (path string, err error) {
	f, err := os.CreateTemp(c.TempDir, "council-answer-*.md")
	if err != nil {
		return "", err
	}
	path = f.Name()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if _, err = f.WriteString(text); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
