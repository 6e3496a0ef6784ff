package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/zephyra-labs/zephyra-cli/internal/wallet"
)

// terminalPrompt asks on stderr and reads one answer line per question.
func terminalPrompt(in io.Reader, w io.Writer) wallet.Prompt {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, summary string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if _, err := fmt.Fprintf(w, "%s\nproceed? [y/N] ", summary); err != nil {
			return false, err
		}
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
