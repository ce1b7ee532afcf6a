package activity

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// tailBlockSize is how many bytes each backwards read covers. Files at or
// below one block take the fast path and are read in a single call.
const tailBlockSize = 8192

// TailLines returns the last n non-empty lines of the file at path, in
// original order. It reads backwards block by block from the end, so the
// cost is proportional to the tail, not the file.
func TailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return tail(f, info.Size(), n, tailBlockSize)
}

// tail reads the last n non-empty lines from r, whose total size is given.
// blockSize is injectable so tests can assert how many reads a query costs.
func tail(r io.ReaderAt, size int64, n int, blockSize int) ([]string, error) {
	if n <= 0 || size == 0 {
		return nil, nil
	}

	// Fast path: the whole file fits in one block.
	if size <= int64(blockSize) {
		buf := make([]byte, size)
		if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading log: %w", err)
		}
		return lastNonEmpty(splitLines(buf), n), nil
	}

	var lines []string // collected newest-first
	var carry []byte   // partial line spilling over a block boundary
	offset := size
	buf := make([]byte, blockSize)
	for offset > 0 && len(lines) < n {
		readLen := int64(blockSize)
		if offset < readLen {
			readLen = offset
		}
		offset -= readLen
		chunk := buf[:readLen]
		if _, err := r.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading log block at %d: %w", offset, err)
		}

		block := make([]byte, len(chunk), len(chunk)+len(carry))
		copy(block, chunk)
		block = append(block, carry...)

		parts := bytes.Split(block, []byte{'\n'})
		// The first part may be the tail of a line continuing in the
		// previous (earlier) block; hold it back unless we are at the
		// file start.
		first := 0
		if offset > 0 {
			carry = append([]byte(nil), parts[0]...)
			first = 1
		} else {
			carry = nil
		}
		for i := len(parts) - 1; i >= first && len(lines) < n; i-- {
			line := strings.TrimSpace(string(parts[i]))
			if line != "" {
				lines = append(lines, line)
			}
		}
	}

	// Reverse into original order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}

func splitLines(buf []byte) []string {
	raw := strings.Split(string(buf), "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lastNonEmpty(lines []string, n int) []string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
