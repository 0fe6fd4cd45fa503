// Package ui wraps fzf for picking titles, seasons, episodes and playback
// outcomes. Items go to fzf as plain text on stdin; no preview commands or
// shell-evaluated strings are built from remote data.
package ui

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrCancelled is returned when the user aborts a prompt.
var ErrCancelled = errors.New("selection cancelled")

// Select presents items via fzf and returns the index of the chosen one.
func Select(prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, errors.New("no items to select from")
	}
	fzfPath, err := exec.LookPath("fzf")
	if err != nil {
		return -1, errors.Wrap(err, "fzf not found in PATH")
	}

	cmd := exec.Command(fzfPath,
		"--prompt", prompt+" > ",
		"--height", "40%",
		"--reverse",
		"--with-nth", "2..",
		"--delimiter", "\t",
		"--no-multi",
		"--cycle",
	)
	cmd.Stdin = strings.NewReader(numbered(items))
	cmd.Stderr = os.Stderr
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 130 {
			return -1, ErrCancelled
		}
		return -1, errors.Wrap(err, "fzf failed")
	}
	return parseSelection(stdout.String(), len(items))
}

// numbered prefixes each item with its index and a tab, the field fzf hides.
func numbered(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d\t%s\n", i, strings.ReplaceAll(item, "\n", " "))
	}
	return b.String()
}

func parseSelection(out string, n int) (int, error) {
	selected := strings.TrimSpace(out)
	if selected == "" {
		return -1, ErrCancelled
	}
	field, _, _ := strings.Cut(selected, "\t")
	idx, err := strconv.Atoi(field)
	if err != nil {
		return -1, errors.Wrap(err, "parsing selection index")
	}
	if idx < 0 || idx >= n {
		return -1, errors.Errorf("selection index %d out of range", idx)
	}
	return idx, nil
}

// Confirm asks a yes/no question.
func Confirm(prompt string) (bool, error) {
	idx, err := Select(prompt, []string{"Yes", "No"})
	if err != nil {
		return false, err
	}
	return idx == 0, nil
}

// Input prompts for free text via fzf's --print-query.
func Input(prompt string) (string, error) {
	fzfPath, err := exec.LookPath("fzf")
	if err != nil {
		return "", errors.Wrap(err, "fzf not found in PATH")
	}

	cmd := exec.Command(fzfPath,
		"--prompt", prompt+" > ",
		"--height", "10%",
		"--reverse",
		"--print-query",
		"--no-info",
	)
	cmd.Stdin = strings.NewReader("")
	cmd.Stderr = os.Stderr
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	// fzf exits 1 with --print-query and no match.
	_ = cmd.Run()

	query := strings.TrimSpace(strings.Split(stdout.String(), "\n")[0])
	if query == "" {
		return "", ErrCancelled
	}
	return query, nil
}
