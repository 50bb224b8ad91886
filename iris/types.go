// Package iris implements the Iris File Extension (.iris) container format:
// a memory-mappable, tile-pyramid container for whole-slide microscopy
// images, its encoder pipeline, and a remote HTTP-range reader.
package iris

import "fmt"

// Version is a (major, minor, build) triple identifying the codec release
// that produced a file.
type Version struct {
	Major uint16
	Minor uint16
	Build uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// Format describes the in-memory pixel layout used when exchanging
// decompressed pixels with a SourceReader or ImageCodec.
type Format uint8

const (
	FormatUndefined Format = iota
	FormatB8G8R8
	FormatR8G8B8
	FormatB8G8R8A8
	FormatR8G8B8A8
)

// channels returns the byte stride per pixel for a Format.
func (f Format) channels() int {
	switch f {
	case FormatB8G8R8, FormatR8G8B8:
		return 3
	case FormatB8G8R8A8, FormatR8G8B8A8:
		return 4
	default:
		return 0
	}
}

// Encoding is the compression scheme used for a pyramid tile's bytestream.
type Encoding uint8

const (
	EncodingUndefined Encoding = iota
	EncodingIris
	EncodingJPEG
	EncodingAVIF
	EncodingDefault = EncodingJPEG
)

func (e Encoding) String() string {
	switch e {
	case EncodingIris:
		return "iris"
	case EncodingJPEG:
		return "jpeg"
	case EncodingAVIF:
		return "avif"
	default:
		return "undefined"
	}
}

// ImageEncoding is the compression scheme used for associated images
// (labels, thumbnails, macro shots), which are not part of the tile pyramid.
type ImageEncoding uint8

const (
	ImageEncodingUndefined ImageEncoding = iota
	ImageEncodingPNG
	ImageEncodingJPEG
	ImageEncodingAVIF
)

// ImageOrientation is the rotation, in degrees clockwise, to apply to a
// decoded associated image before presenting it to a caller.
type ImageOrientation uint16

const (
	Orientation0   ImageOrientation = 0
	Orientation90  ImageOrientation = 90
	Orientation180 ImageOrientation = 180
	Orientation270 ImageOrientation = 270
)

// Quality is a JPEG/AVIF-style quality factor in [0,100].
type Quality uint16

const QualityDefault Quality = 90

// Subsampling selects chroma subsampling for lossy tile compression.
type Subsampling uint8

const (
	Subsample444 Subsampling = iota // lossless chroma
	Subsample422
	Subsample420
	SubsampleDefault = Subsample422
)

// DerivationStrategy selects how an encoder fills layers above the source
// resolution.
type DerivationStrategy uint8

const (
	DeriveUseSource DerivationStrategy = iota
	Derive2x
	Derive4x
)

func (d DerivationStrategy) String() string {
	switch d {
	case Derive2x:
		return "2x"
	case Derive4x:
		return "4x"
	default:
		return "use-source"
	}
}

const (
	// TileDim is the fixed edge length, in pixels, of every pyramid tile.
	TileDim = 256
	// NullOffset marks an absent reference inside the container.
	NullOffset uint64 = 0
)
