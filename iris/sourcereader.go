package iris

import (
	"context"
	"fmt"
)

// SourceReader is the capability boundary over heterogeneous tile sources:
// another Iris slide, or a vendor format via an external decoder (DICOM,
// openslide, ...). Only the Iris-to-Iris implementation ships here; vendor
// decoders are out of scope and selected at construction time by whoever
// wires in a concrete implementation (file sniffing: Iris signature vs.
// vendor probe).
type SourceReader interface {
	SourceExtent() Extent
	ReadTile(layer, index uint32, desiredFormat Format) ([]byte, error)
	SourceMetadata() Metadata
	SourceAssociatedImages() []AssociatedImage
}

// IrisSourceReader adapts an already-open Slide into a SourceReader, the
// "another Iris slide" case of the encoder's heterogeneous source input.
type IrisSourceReader struct {
	slide *Slide
}

func NewIrisSourceReader(slide *Slide) *IrisSourceReader {
	return &IrisSourceReader{slide: slide}
}

func (r *IrisSourceReader) SourceExtent() Extent {
	return r.slide.GetSlideInfo().Extent
}

func (r *IrisSourceReader) ReadTile(layer, index uint32, desiredFormat Format) ([]byte, error) {
	return r.slide.ReadSlideTile(layer, index, desiredFormat, nil)
}

func (r *IrisSourceReader) SourceMetadata() Metadata {
	return r.slide.GetSlideInfo().Metadata
}

func (r *IrisSourceReader) SourceAssociatedImages() []AssociatedImage {
	return r.slide.abs.Metadata.AssociatedImages
}

// RemoteSourceReader adapts an already-open RemoteSlide into a SourceReader,
// letting an encoder re-derive or recompress a container that lives behind
// a Bucket instead of on local disk (e.g. re-encoding a remote .iris at a
// different quality without downloading it whole first).
type RemoteSourceReader struct {
	ctx    context.Context
	remote *RemoteSlide
}

func NewRemoteSourceReader(ctx context.Context, remote *RemoteSlide) *RemoteSourceReader {
	return &RemoteSourceReader{ctx: ctx, remote: remote}
}

func (r *RemoteSourceReader) SourceExtent() Extent {
	return r.remote.GetSlideInfo().Extent
}

func (r *RemoteSourceReader) ReadTile(layer, index uint32, desiredFormat Format) ([]byte, error) {
	return r.remote.ReadSlideTile(r.ctx, layer, index, desiredFormat)
}

func (r *RemoteSourceReader) SourceMetadata() Metadata {
	return r.remote.GetSlideInfo().Metadata
}

func (r *RemoteSourceReader) SourceAssociatedImages() []AssociatedImage {
	return r.remote.metadata.AssociatedImages
}

// OpenSourceReader sniffs path and returns a SourceReader for it. Only the
// Iris container format is sniffed directly; any other format requires a
// caller-supplied SourceReader (a vendor decoder), since those decoders are
// an explicit out-of-scope capability for this module.
func OpenSourceReader(path string, codec *CodecContext) (SourceReader, error) {
	f, err := Open(path, false)
	if err != nil {
		return nil, err
	}
	f.ResizeRLock()
	isIris := IsIrisCodecFile(f.Ptr())
	f.ResizeRUnlock()
	if !isIris {
		f.Close()
		return nil, fmt.Errorf("iris: %s is not an Iris container; supply a vendor SourceReader", path)
	}
	f.Close()
	slide, err := OpenSlide(path, codec)
	if err != nil {
		return nil, err
	}
	return NewIrisSourceReader(slide), nil
}
