package usecase

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"

	"iatbridge/internal/errorsx"
)

func TestFrameChunkerSegmentation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		length    int
		chunkSize int
		want      []string
	}{
		{0, 1280, []string{"first:0", "last:0"}},
		{640, 1280, []string{"first:640", "last:0"}},
		{1280, 1280, []string{"first:1280", "last:0"}},
		{2560, 1280, []string{"first:1280", "last:1280"}},
		{3200, 1280, []string{"first:1280", "continue:1280", "last:640"}},
		{10, 3, []string{"first:3", "continue:3", "continue:3", "last:1"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(fmt.Sprintf("%d_%d", tc.length, tc.chunkSize), func(t *testing.T) {
			t.Parallel()
			got := collectFrames(t, bytes.NewReader(make([]byte, tc.length)), tc.chunkSize)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("unexpected frames: %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFrameChunkerFillsChunksFromShortReads(t *testing.T) {
	t.Parallel()

	got := collectFrames(t, iotest.OneByteReader(strings.NewReader(strings.Repeat("x", 7))), 4)
	want := []string{"first:4", "last:3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected frames: %v", got)
	}
}

func TestFrameChunkerPreservesFileOrder(t *testing.T) {
	t.Parallel()

	chunker := newFrameChunker(strings.NewReader("abcdefg"), 3)
	var payloads []string
	for {
		_, payload, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		payloads = append(payloads, string(payload))
	}
	if strings.Join(payloads, "|") != "abc|def|g" {
		t.Fatalf("unexpected payload order: %v", payloads)
	}
}

func TestFrameChunkerReportsReadError(t *testing.T) {
	t.Parallel()

	chunker := newFrameChunker(iotest.ErrReader(errors.New("disk gone")), 4)
	_, _, err := chunker.Next()
	if !errorsx.HasReason(err, errorsx.ReasonAudioRead) {
		t.Fatalf("expected audio read error, got %v", err)
	}
}

func TestFrameChunkerDefaultsChunkSize(t *testing.T) {
	t.Parallel()

	chunker := newFrameChunker(strings.NewReader(""), 0)
	if len(chunker.buf) != defaultChunkSize {
		t.Fatalf("unexpected chunk size: %d", len(chunker.buf))
	}
}

func collectFrames(t *testing.T, r io.Reader, chunkSize int) []string {
	t.Helper()

	chunker := newFrameChunker(r, chunkSize)
	var frames []string
	for {
		state, payload, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		frames = append(frames, fmt.Sprintf("%s:%d", state, len(payload)))
		if len(frames) > 100 {
			t.Fatalf("runaway chunker")
		}
	}
}
