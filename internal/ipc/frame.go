// Package ipc implements the parent<->child pipe framing protocol from
// spec.md §4.1: one short ASCII, null-terminated message per write, with a
// hard 128-byte ceiling per frame.
package ipc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/junctionctl/controller/internal/phase"
)

// MaxFrameBytes is the hard per-frame ceiling from spec.md §4.1. Oversized
// payloads must be rejected at the producer rather than silently truncated
// or split across writes.
const MaxFrameBytes = 128

// ErrFrameTooLarge is returned by the encoders when a payload would not fit
// in a single MaxFrameBytes write.
var ErrFrameTooLarge = fmt.Errorf("ipc: frame exceeds %d bytes", MaxFrameBytes)

// WriteCommand sends one phase-command frame: the assignment's ASCII tag,
// null-terminated. Framing is one message per write, matching the parent's
// per-child write in spec.md §4.4.
func WriteCommand(w io.Writer, a phase.Assignment) error {
	frame := append([]byte(a.Tag()), 0)
	if len(frame) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	_, err := w.Write(frame)
	return err
}

// ReadCommandNonBlocking performs a single non-blocking read attempt on a
// child's parent->child pipe end, per spec.md §4.2 step 3. Absence of a
// frame (read timeout) is a valid state meaning "continue current
// behavior" and is reported as ok=false with a nil error.
//
// f must support SetReadDeadline (true of the *os.File returned by
// os.Pipe on every platform this system targets).
func ReadCommandNonBlocking(f *os.File, pollTimeout time.Duration) (a phase.Assignment, ok bool, err error) {
	if err := f.SetReadDeadline(time.Now().Add(pollTimeout)); err != nil {
		return phase.Unknown, false, fmt.Errorf("ipc: set read deadline: %w", err)
	}

	buf := make([]byte, MaxFrameBytes)
	n, rerr := f.Read(buf)
	if rerr != nil {
		if os.IsTimeout(rerr) {
			return phase.Unknown, false, nil
		}
		if rerr == io.EOF {
			return phase.Unknown, false, io.EOF
		}
		return phase.Unknown, false, fmt.Errorf("ipc: read command: %w", rerr)
	}
	if n == 0 {
		return phase.Unknown, false, nil
	}

	tag := string(bytes.TrimRight(buf[:n], "\x00"))
	got, known := phase.ParseTag(tag)
	if !known {
		return phase.Unknown, false, fmt.Errorf("ipc: unrecognized command tag %q", tag)
	}
	return got, true, nil
}
