// Package relay copies a child process output stream into a log file in the
// background.
package relay

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ternarybob/arbor"
)

// ChunkSize is the size of a single read from the source stream.
const ChunkSize = 8192

// Relay creates (or truncates) target and copies src into it from a detached
// goroutine. Only the file creation error is returned; failures while copying
// are logged and end the copy. The caller is never told when the copy ends.
// src is closed once the copy stops when it implements io.Closer.
func Relay(src io.Reader, target string, log arbor.ILogger) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	go func() {
		if c, ok := src.(io.Closer); ok {
			defer func() { _ = c.Close() }()
		}
		if err := copyChunks(f, src); err != nil {
			log.Error().Err(err).Str("target", target).Msg("failed to transfer logs")
		}
	}()

	return nil
}

// copyChunks writes every chunk before reading the next one and closes dst.
func copyChunks(dst io.WriteCloser, src io.Reader) (err error) {
	defer func() {
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
	}()

	buf := make([]byte, ChunkSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
	}
}
