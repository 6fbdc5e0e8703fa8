package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"iatbridge/internal/errorsx"
)

const (
	decodeSampleRate = 16000
	decodeChannels   = 1
	stopGrace        = 1200 * time.Millisecond
)

// FFMPEGDecoder converts uploaded audio of any container into the PCM stream
// the speech service expects.
type FFMPEGDecoder struct {
	command string
}

func NewFFMPEGDecoder(command string) *FFMPEGDecoder {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGDecoder{command: command}
}

// Open starts ffmpeg on path. Reading the returned stream yields s16le PCM;
// closing it terminates the process.
func (d *FFMPEGDecoder) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-ac", strconv.Itoa(decodeChannels),
		"-ar", strconv.Itoa(decodeSampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, d.command, args...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// An owned pipe keeps Wait from closing stdout under an in-flight read.
	stdout, stdoutWriter, err := os.Pipe()
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err), errorsx.ReasonAudioRead)
	}
	cmd.Stdout = stdoutWriter
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stdoutWriter.Close()
		return nil, errorsx.Wrap(fmt.Errorf("failed to start ffmpeg: %w", err), errorsx.ReasonAudioRead)
	}
	_ = stdoutWriter.Close()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	return &decodeStream{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type decodeStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	exitOnce sync.Once
	exitErr  error

	closeOnce sync.Once
	closeErr  error
}

func (s *decodeStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		if exitErr := s.exit(); exitErr != nil {
			return n, errorsx.Wrap(
				fmt.Errorf("ffmpeg decode failed: %w: %s", exitErr, stringsTrimSpaceSafe(s.stderr.String())),
				errorsx.ReasonAudioRead,
			)
		}
	}
	return n, err
}

// exit waits for the process once stdout is drained and reports its status.
func (s *decodeStream) exit() error {
	s.exitOnce.Do(func() {
		s.exitErr = <-s.waitErr
	})
	return s.exitErr
}

func (s *decodeStream) Close() error {
	s.closeOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		done := make(chan struct{})
		go func() {
			s.exit()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			<-done
		}
		s.closeErr = normalizeStopErr(s.exitErr)

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.closeErr == nil {
			s.closeErr = closeErr
		}
		if s.closeErr != nil && s.stderr.Len() > 0 {
			s.closeErr = fmt.Errorf("%w: %s", s.closeErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})
	return s.closeErr
}

// normalizeStopErr drops exit statuses caused by our own termination signal.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
