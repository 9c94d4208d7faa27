package audiosrc

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource streams fixed-size PCM16 chunks out of a mono WAV file for
// replay/testing, reusing the rest of a chunk as the start of the next
// read so callers always get exactly the chunk size they ask for (except
// at end of file). Grounded on linuxmatters-jivefire's internal/audio
// StreamingReader, adapted from its float64-normalized buffering to the
// raw int16 samples the pipeline consumes directly.
type WAVSource struct {
	file       *os.File
	decoder    *wav.Decoder
	sampleRate int

	pending []int16 // leftover samples from the last underlying read
}

// NewWAVSource opens path and prepares it for chunked streaming.
func NewWAVSource(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("invalid wav file: %s", path)
	}
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek to pcm data: %w", err)
	}
	if decoder.BitDepth != 16 {
		f.Close()
		return nil, fmt.Errorf("unsupported bit depth %d, want 16", decoder.BitDepth)
	}

	return &WAVSource{
		file:       f,
		decoder:    decoder,
		sampleRate: int(decoder.SampleRate),
	}, nil
}

// ReadChunk returns chunkSize mono int16 samples (fewer for the last chunk
// of the file), or io.EOF once the file is exhausted and no pending samples
// remain.
func (w *WAVSource) ReadChunk(chunkSize int) ([]int16, error) {
	for len(w.pending) < chunkSize {
		buf := &audio.IntBuffer{
			Data: make([]int, chunkSize),
			Format: &audio.Format{
				NumChannels: int(w.decoder.NumChans),
				SampleRate:  int(w.decoder.SampleRate),
			},
		}
		n, err := w.decoder.PCMBuffer(buf)
		if n == 0 {
			if len(w.pending) == 0 {
				if err != nil && err != io.EOF {
					return nil, fmt.Errorf("read pcm buffer: %w", err)
				}
				return nil, io.EOF
			}
			break
		}

		samples := make([]int16, n)
		for i := 0; i < n; i++ {
			samples[i] = int16(buf.Data[i])
		}
		w.pending = append(w.pending, samples...)

		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read pcm buffer: %w", err)
		}
		if err == io.EOF {
			break
		}
	}

	if len(w.pending) == 0 {
		return nil, io.EOF
	}

	take := chunkSize
	if take > len(w.pending) {
		take = len(w.pending)
	}
	chunk := w.pending[:take]
	w.pending = w.pending[take:]
	return chunk, nil
}

// SampleRate reports the file's native sample rate.
func (w *WAVSource) SampleRate() int {
	return w.sampleRate
}

// Close releases the underlying file handle.
func (w *WAVSource) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
