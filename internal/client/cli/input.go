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

// readLine returns the first line of r without surrounding whitespace. A
// final line without a newline is accepted.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetSecret prompts on w and reads a value without echo when in is an
// interactive stdin. Otherwise the first line of in is used, so values can
// be piped. The caller wipes the result.
func GetSecret(in io.Reader, w io.Writer, prompt string) ([]byte, error) {
	fmt.Fprintf(w, "%s: ", prompt)

	fd := int(os.Stdin.Fd())
	if in != os.Stdin || !isTerminal(fd) {
		line, err := readLine(in)
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	}

	value, err := readPassword(fd)
	fmt.Fprintln(w)
	return value, err
}
