package audio

import (
	"context"
	"fmt"
	"io"
	"os"

	"iatbridge/internal/errorsx"
	"iatbridge/internal/ports"
)

// NewSource returns an ffmpeg-backed decoder when a command is configured and
// a raw PCM file reader otherwise.
func NewSource(ffmpegCommand string) ports.AudioSource {
	if ffmpegCommand == "" {
		return FileSource{}
	}
	return NewFFMPEGDecoder(ffmpegCommand)
}

// FileSource streams a file that already holds 16 kHz mono s16le PCM.
type FileSource struct{}

func (FileSource) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("failed to open audio file: %w", err), errorsx.ReasonAudioRead)
	}
	return file, nil
}
