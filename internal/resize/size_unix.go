//go:build unix

package resize

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileSize returns a SizeFunc reading the window size of f with TIOCGWINSZ.
func FileSize(f *os.File) SizeFunc {
	return func() (Size, error) {
		ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
		if err != nil {
			return Size{}, fmt.Errorf("ioctl TIOCGWINSZ: %w", err)
		}

		return Size{Width: int(ws.Col), Height: int(ws.Row)}, nil
	}
}
