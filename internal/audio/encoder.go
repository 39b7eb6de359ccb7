/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/rs/zerolog"
)

// Encoder runs one ffmpeg process per delivery: raw PCM from the host on
// stdin, encoded codec stream on stdout. Cancelling the context kills the
// process; Close reaps it.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	log    zerolog.Logger
}

// NewEncoder starts ffmpeg for the given codec. The input is signed 16-bit
// little-endian stereo PCM at 44.1 kHz, matching the host's PCM streams.
func NewEncoder(ctx context.Context, bin string, codec Codec, log zerolog.Logger) (*Encoder, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", "44100",
		"-ac", "2",
		"-i", "pipe:0",
	}
	args = append(args, codec.FFArgs...)
	args = append(args, "pipe:1")

	cmd := exec.CommandContext(ctx, bin, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	enc := &Encoder{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		log:    log.With().Str("component", "encoder").Str("format", string(codec.Format)).Logger(),
	}

	// Drain stderr so ffmpeg never blocks on a full pipe; error lines are
	// worth keeping in the logs.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			enc.log.Warn().Str("ffmpeg", scanner.Text()).Msg("Encoder stderr")
		}
	}()

	return enc, nil
}

// Stdin is the PCM input. The caller must close it (via CloseInput) when
// the source is exhausted so ffmpeg can flush and exit.
func (e *Encoder) Stdin() io.Writer { return e.stdin }

// Stdout is the encoded output.
func (e *Encoder) Stdout() io.Reader { return e.stdout }

// CloseInput signals end of PCM input.
func (e *Encoder) CloseInput() error { return e.stdin.Close() }

// Close terminates the process if still running and reaps it. Always call
// Close, on every exit path, or the process leaks.
func (e *Encoder) Close() error {
	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	err := e.cmd.Wait()
	if err != nil && e.cmd.ProcessState != nil && !e.cmd.ProcessState.Success() {
		// Killed processes report a non-zero exit; that is the normal
		// teardown path, not a failure worth surfacing.
		return nil
	}
	return err
}
