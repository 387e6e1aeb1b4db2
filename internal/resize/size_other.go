//go:build !unix

package resize

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// FileSize returns a SizeFunc reading the console size of f.
func FileSize(f *os.File) SizeFunc {
	return func() (Size, error) {
		w, h, err := term.GetSize(int(f.Fd()))
		if err != nil {
			return Size{}, fmt.Errorf("get terminal size: %w", err)
		}

		return Size{Width: w, Height: h}, nil
	}
}
