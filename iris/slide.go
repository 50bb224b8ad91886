package iris

import "fmt"

// Slide is a bounds-checked, read-only view of an opened .iris container:
// the slide reader component. Each OpenSlide call maps its own read-only
// File; several Slides may be open over the same path at once.
type Slide struct {
	file  *File
	abs   Abstraction
	codec *CodecContext
}

// OpenSlide opens path and parses its abstraction once. The codec is used
// to decompress tiles and associated images on read.
func OpenSlide(path string, codec *CodecContext) (*Slide, error) {
	f, err := Open(path, false)
	if err != nil {
		return nil, err
	}
	f.ResizeRLock()
	abs, res := AbstractFileStructure(f.Ptr())
	f.ResizeRUnlock()
	if !res.OK() {
		f.Close()
		return nil, res
	}
	if codec == nil {
		codec = NewCodecContext(nil, nil)
	}
	return &Slide{file: f, abs: abs, codec: codec}, nil
}

func (s *Slide) Close() error { return s.file.Close() }

// SlideInfo mirrors get_slide_info(): format, encoding, extent, metadata.
type SlideInfo struct {
	Format   Format
	Encoding Encoding
	Extent   Extent
	Metadata Metadata
}

func (s *Slide) GetSlideInfo() SlideInfo {
	return SlideInfo{
		Format:   s.abs.TileTable.Format,
		Encoding: s.abs.TileTable.Encoding,
		Extent:   s.abs.TileTable.Extent,
		Metadata: s.abs.Metadata,
	}
}

// ReadSlideTile bounds-checks (layer, index), locates the tile's byte
// range, takes a shared resize lock while wrapping the mapped bytes as a
// weak buffer, and dispatches to the codec context for decompression.
// optionalDestination, when large enough, is filled in place instead of
// allocating.
func (s *Slide) ReadSlideTile(layer, index uint32, desiredFormat Format, optionalDestination []byte) ([]byte, error) {
	tt := s.abs.TileTable
	if int(layer) >= len(tt.Layers) {
		return nil, fmt.Errorf("iris: layer %d out of range (have %d layers)", layer, len(tt.Layers))
	}
	entries := tt.Layers[layer]
	if int(index) >= len(entries) {
		return nil, fmt.Errorf("iris: tile index %d out of range (layer %d has %d tiles)", index, layer, len(entries))
	}
	entry := entries[index]
	if !entry.Valid() {
		return nil, fmt.Errorf("iris: tile (layer=%d, index=%d) has no stored data", layer, index)
	}

	s.file.ResizeRLock()
	defer s.file.ResizeRUnlock()
	data := s.file.Ptr()
	if entry.Offset+uint64(entry.Size) > uint64(len(data)) {
		return nil, fmt.Errorf("iris: tile entry out of range for current mapping")
	}
	weak := NewWeakBuffer(data[entry.Offset : entry.Offset+uint64(entry.Size)])
	return s.codec.DecompressTile(weak.Data(), tt.Encoding, desiredFormat, optionalDestination)
}

// GetAssociatedImageInfo returns the metadata of a named associated image
// without decompressing its bytes.
func (s *Slide) GetAssociatedImageInfo(label string) (AssociatedImage, error) {
	img, ok := s.abs.Metadata.AssociatedImage(label)
	if !ok {
		return AssociatedImage{}, fmt.Errorf("iris: no associated image named %q", label)
	}
	img.Bytes = nil
	return img, nil
}

// ReadAssociatedImage decompresses the named associated image into pixels
// of desiredFormat.
func (s *Slide) ReadAssociatedImage(label string, desiredFormat Format) ([]byte, error) {
	img, ok := s.abs.Metadata.AssociatedImage(label)
	if !ok {
		return nil, fmt.Errorf("iris: no associated image named %q", label)
	}
	pixels, err := s.codec.DecompressImage(img.Bytes, img.Encoding, img.SourceFormat, desiredFormat, img.Width, img.Height)
	if err != nil {
		return nil, err
	}
	return applyOrientation(pixels, desiredFormat, img.Width, img.Height, img.Orientation), nil
}

// applyOrientation rotates a decoded associated image per its stored
// orientation before returning it to the caller; the original encoder
// records orientation but several downstream consumers in the source
// project never honored it; this module always applies it.
func applyOrientation(pixels []byte, format Format, width, height uint32, orientation ImageOrientation) []byte {
	if orientation == Orientation0 {
		return pixels
	}
	ch := format.channels()
	w, h := int(width), int(height)
	rotate := func(src []byte, srcW, srcH int, clockwise90Steps int) ([]byte, int, int) {
		dstW, dstH := srcW, srcH
		if clockwise90Steps%2 == 1 {
			dstW, dstH = srcH, srcW
		}
		dst := make([]byte, len(src))
		for y := 0; y < srcH; y++ {
			for x := 0; x < srcW; x++ {
				var dx, dy int
				switch clockwise90Steps % 4 {
				case 1: // 90
					dx, dy = srcH-1-y, x
				case 2: // 180
					dx, dy = srcW-1-x, srcH-1-y
				case 3: // 270
					dx, dy = y, srcW-1-x
				default:
					dx, dy = x, y
				}
				si := (y*srcW + x) * ch
				di := (dy*dstW + dx) * ch
				copy(dst[di:di+ch], src[si:si+ch])
			}
		}
		return dst, dstW, dstH
	}
	steps := int(orientation) / 90
	out, _, _ := rotate(pixels, w, h, steps)
	return out
}
