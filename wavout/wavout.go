// Package wavout writes rendered synth output to WAV files.
package wavout

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Writer encodes interleaved 16-bit stereo frames as a PCM WAV stream.
type Writer struct {
	enc    *wav.Encoder
	buf    audio.IntBuffer
	closer io.Closer
	frames int
}

// New starts a WAV stream on ws at rate frames per second. The header is
// completed by Close, which needs to seek back.
func New(ws io.WriteSeeker, rate int) *Writer {
	w := &Writer{enc: wav.NewEncoder(ws, rate, 16, 2, 1)}
	w.buf.Format = &audio.Format{NumChannels: 2, SampleRate: rate}
	w.buf.SourceBitDepth = 16
	return w
}

// Create creates the file at path and starts a WAV stream on it.
func Create(path string, rate int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavout: %w", err)
	}
	w := New(f, rate)
	w.closer = f
	return w, nil
}

// WriteSamples appends interleaved left/right samples.
func (w *Writer) WriteSamples(samples []int16) error {
	if len(samples)%2 != 0 {
		return fmt.Errorf("wavout: odd sample count %d", len(samples))
	}
	w.buf.Data = w.buf.Data[:0]
	for _, s := range samples {
		w.buf.Data = append(w.buf.Data, int(s))
	}
	if err := w.enc.Write(&w.buf); err != nil {
		return fmt.Errorf("wavout: %w", err)
	}
	w.frames += len(samples) / 2
	return nil
}

// Frames returns the number of stereo frames written.
func (w *Writer) Frames() int { return w.frames }

// Close finalises the header and closes the file when the writer
// created it.
func (w *Writer) Close() error {
	err := w.enc.Close()
	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
	}
	if err != nil {
		return fmt.Errorf("wavout: %w", err)
	}
	return nil
}
