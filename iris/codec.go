package iris

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// ImageCodec is the capability boundary over third-party image compression
// libraries: the one seam in this module genuinely left to an external
// collaborator. CodecContext below ships a default, stdlib-backed
// implementation (JPEG/PNG only; no AVIF encoder exists in the Go standard
// library or anywhere in this module's dependency set) so the module is
// usable standalone, while still letting a caller substitute a real
// JPEG/AVIF/PNG library or GPU-backed codec by implementing this interface.
type ImageCodec interface {
	CompressTile(pixels []byte, format Format, encoding Encoding, quality Quality, subsampling Subsampling) ([]byte, error)
	DecompressTile(data []byte, encoding Encoding, desiredFormat Format, dst []byte) ([]byte, error)
	CompressImage(pixels []byte, width, height uint32, format Format, encoding ImageEncoding, quality Quality, subsampling Subsampling) ([]byte, error)
	DecompressImage(data []byte, encoding ImageEncoding, sourceFormat, desiredFormat Format, width, height uint32) ([]byte, error)
}

// CodecContext is the only place in this module that touches codec
// libraries directly. Device is carried through as an opaque handle for a
// future GPU-accelerated implementation; it is never dereferenced here.
type CodecContext struct {
	Device any // optional GPU handle; out of scope, passed through only
	codec  ImageCodec
}

// NewCodecContext builds a context around codec. A nil codec falls back to
// the stdlib JPEG/PNG implementation below.
func NewCodecContext(device any, codec ImageCodec) *CodecContext {
	if codec == nil {
		codec = stdlibCodec{}
	}
	return &CodecContext{Device: device, codec: codec}
}

func (c *CodecContext) CompressTile(pixels []byte, format Format, encoding Encoding, quality Quality, subsampling Subsampling) ([]byte, error) {
	if len(pixels) != TileDim*TileDim*format.channels() {
		return nil, fmt.Errorf("iris: tile pixel buffer has %d bytes, want %d", len(pixels), TileDim*TileDim*format.channels())
	}
	return c.codec.CompressTile(pixels, format, encoding, quality, subsampling)
}

func (c *CodecContext) DecompressTile(data []byte, encoding Encoding, desiredFormat Format, dst []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("iris: no tile bytes to decompress")
	}
	return c.codec.DecompressTile(data, encoding, desiredFormat, dst)
}

func (c *CodecContext) CompressImage(pixels []byte, width, height uint32, format Format, encoding ImageEncoding, quality Quality, subsampling Subsampling) ([]byte, error) {
	return c.codec.CompressImage(pixels, width, height, format, encoding, quality, subsampling)
}

func (c *CodecContext) DecompressImage(data []byte, encoding ImageEncoding, sourceFormat, desiredFormat Format, width, height uint32) ([]byte, error) {
	return c.codec.DecompressImage(data, encoding, sourceFormat, desiredFormat, width, height)
}

// stdlibCodec is the default ImageCodec: JPEG via image/jpeg, "iris"
// (raw, uncompressed passthrough) and PNG via image/png. AVIF is
// unsupported here (returns an error) since no AVIF codec exists in the
// standard library or this module's dependency set; a caller needing AVIF
// supplies their own ImageCodec.
type stdlibCodec struct{}

func (stdlibCodec) CompressTile(pixels []byte, format Format, encoding Encoding, quality Quality, subsampling Subsampling) ([]byte, error) {
	switch encoding {
	case EncodingIris:
		out := make([]byte, len(pixels))
		copy(out, pixels)
		return out, nil
	case EncodingJPEG:
		img := decodeToRGBA(pixels, format, TileDim, TileDim)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: int(quality)}); err != nil {
			return nil, fmt.Errorf("iris: jpeg encode: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("iris: unsupported tile encoding %v for the stdlib codec", encoding)
	}
}

func (stdlibCodec) DecompressTile(data []byte, encoding Encoding, desiredFormat Format, dst []byte) ([]byte, error) {
	switch encoding {
	case EncodingIris:
		out := dst
		if len(out) < len(data) {
			out = make([]byte, len(data))
		}
		copy(out, data)
		return out[:len(data)], nil
	case EncodingJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("iris: jpeg decode: %w", err)
		}
		return encodeFromImage(img, desiredFormat, dst), nil
	default:
		return nil, fmt.Errorf("iris: unsupported tile encoding %v for the stdlib codec", encoding)
	}
}

func (stdlibCodec) CompressImage(pixels []byte, width, height uint32, format Format, encoding ImageEncoding, quality Quality, subsampling Subsampling) ([]byte, error) {
	img := decodeToRGBA(pixels, format, int(width), int(height))
	var buf bytes.Buffer
	switch encoding {
	case ImageEncodingPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("iris: png encode: %w", err)
		}
	case ImageEncodingJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: int(quality)}); err != nil {
			return nil, fmt.Errorf("iris: jpeg encode: %w", err)
		}
	default:
		return nil, fmt.Errorf("iris: unsupported image encoding %v for the stdlib codec", encoding)
	}
	return buf.Bytes(), nil
}

func (stdlibCodec) DecompressImage(data []byte, encoding ImageEncoding, sourceFormat, desiredFormat Format, width, height uint32) ([]byte, error) {
	var img image.Image
	var err error
	switch encoding {
	case ImageEncodingPNG:
		img, err = png.Decode(bytes.NewReader(data))
	case ImageEncodingJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("iris: unsupported image encoding %v for the stdlib codec", encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("iris: image decode: %w", err)
	}
	return encodeFromImage(img, desiredFormat, nil), nil
}

func decodeToRGBA(pixels []byte, format Format, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	ch := format.channels()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * ch
			var r, g, b, a byte = 0, 0, 0, 255
			switch format {
			case FormatB8G8R8:
				b, g, r = pixels[i], pixels[i+1], pixels[i+2]
			case FormatR8G8B8:
				r, g, b = pixels[i], pixels[i+1], pixels[i+2]
			case FormatB8G8R8A8:
				b, g, r, a = pixels[i], pixels[i+1], pixels[i+2], pixels[i+3]
			case FormatR8G8B8A8:
				r, g, b, a = pixels[i], pixels[i+1], pixels[i+2], pixels[i+3]
			}
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: a})
		}
	}
	return img
}

func encodeFromImage(img image.Image, format Format, dst []byte) []byte {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	ch := format.channels()
	out := dst
	need := width * height * ch
	if len(out) < need {
		out = make([]byte, need)
	}
	out = out[:need]
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r8, g8, b8, a8 := byte(r>>8), byte(g>>8), byte(b>>8), byte(a>>8)
			i := (y*width + x) * ch
			switch format {
			case FormatB8G8R8:
				out[i], out[i+1], out[i+2] = b8, g8, r8
			case FormatR8G8B8:
				out[i], out[i+1], out[i+2] = r8, g8, b8
			case FormatB8G8R8A8:
				out[i], out[i+1], out[i+2], out[i+3] = b8, g8, r8, a8
			case FormatR8G8B8A8:
				out[i], out[i+1], out[i+2], out[i+3] = r8, g8, b8, a8
			}
		}
	}
	return out
}
