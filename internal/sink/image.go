package sink

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/hetk987/Dynamic-Event-Capture/internal/types"
)

// ImageSink writes each frame to disk as a PNG or JPEG file.
//
// Filename format: frame_{seq:06d}_{timestamp}.{ext}
// Example: frame_000042_20251105_234517.123.png
//
// Thread-safe: safe to call from multiple goroutines, though the pipeline
// drives it from the single consumer goroutine.
type ImageSink struct {
	outputDir   string
	format      string
	jpegQuality int

	framesSaved  atomic.Uint64
	framesFailed atomic.Uint64
}

// NewImageSink creates an image sink with the given output directory and
// format ("png" or "jpeg"), fail-fast on invalid configuration.
func NewImageSink(outputDir, format string, jpegQuality int) (*ImageSink, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("sink: failed to create output directory: %w", err)
	}

	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("sink: unsupported image format %q (must be png or jpeg)", format)
	}
	if format == "jpeg" && (jpegQuality < 1 || jpegQuality > 100) {
		return nil, fmt.Errorf("sink: invalid JPEG quality %d (must be 1-100)", jpegQuality)
	}

	return &ImageSink{
		outputDir:   outputDir,
		format:      format,
		jpegQuality: jpegQuality,
	}, nil
}

// Push implements Sink: encodes the frame and writes it to a new file.
func (s *ImageSink) Push(frame types.Frame) error {
	img, err := rgbToRGBA(frame)
	if err != nil {
		s.framesFailed.Add(1)
		return fmt.Errorf("sink: RGB conversion failed: %w", err)
	}

	filename := fmt.Sprintf("frame_%06d_%s.%s",
		frame.Seq,
		frame.Timestamp.Format("20060102_150405.000"),
		s.format)
	path := filepath.Join(s.outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		s.framesFailed.Add(1)
		return fmt.Errorf("sink: failed to create file: %w", err)
	}
	defer file.Close()

	switch s.format {
	case "png":
		err = png.Encode(file, img)
	case "jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: s.jpegQuality})
	}
	if err != nil {
		s.framesFailed.Add(1)
		return fmt.Errorf("sink: %s encode failed: %w", s.format, err)
	}

	s.framesSaved.Add(1)
	return nil
}

// Close implements Sink (per-frame files need no finalization).
func (s *ImageSink) Close() error { return nil }

// Saved returns the number of frames written so far.
func (s *ImageSink) Saved() uint64 { return s.framesSaved.Load() }

// rgbToRGBA converts RGB raw bytes (3 bytes/pixel) to image.RGBA
// (4 bytes/pixel, alpha forced to 255).
func rgbToRGBA(frame types.Frame) (*image.RGBA, error) {
	expected := frame.Width * frame.Height * 3
	if len(frame.Data) != expected {
		return nil, fmt.Errorf("frame data size %d does not match %dx%d RGB (%d bytes)",
			len(frame.Data), frame.Width, frame.Height, expected)
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for i := 0; i < frame.Width*frame.Height; i++ {
		img.Pix[i*4] = frame.Data[i*3]
		img.Pix[i*4+1] = frame.Data[i*3+1]
		img.Pix[i*4+2] = frame.Data[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}
