package iris

import (
	"context"
	"fmt"
	"io"
)

// RemoteSlide reads a .iris container over a Bucket's byte-range interface
// rather than a memory-mapped local file: a ranged GET per structural block
// (file header, tile table header, layer extents, tile offsets, metadata),
// and a ranged GET per tile on demand. No separate size probe (HEAD or
// Content-Length check) is made before the header is read. Every read
// validates it actually got back the bytes it asked for, the 206-or-bust
// check HTTPBucket/BucketAdapter already enforce one layer down.
type RemoteSlide struct {
	bucket  Bucket
	key     string
	codec   *CodecContext
	metrics *Metrics

	header   FileHeader
	table    TileTable
	metadata Metadata
}

// SetMetrics attaches a Metrics sink to an already-open RemoteSlide; nil
// disables instrumentation.
func (r *RemoteSlide) SetMetrics(m *Metrics) { r.metrics = m }

// OpenRemoteSlide fetches the file header directly with a ranged read (the
// object size is not probed first), then fetches and parses every
// structural block of the container at bucket/key, without ever reading the
// tile blob itself.
func OpenRemoteSlide(ctx context.Context, bucket Bucket, key string, codec *CodecContext) (*RemoteSlide, error) {
	if codec == nil {
		codec = NewCodecContext(nil, nil)
	}

	headerBytes, err := readRange(ctx, bucket, key, 0, FileHeaderSize, nil, "")
	if err != nil {
		return nil, fmt.Errorf("iris: fetch file header: %w", err)
	}
	header, err := DecodeFileHeader(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("iris: decode file header: %w", err)
	}

	tthBytes, err := readRange(ctx, bucket, key, int64(header.TileTableOffset), tileTableHeaderSize, nil, "")
	if err != nil {
		return nil, fmt.Errorf("iris: fetch tile table header: %w", err)
	}
	tth, err := DecodeTileTableHeader(tthBytes)
	if err != nil {
		return nil, fmt.Errorf("iris: decode tile table header: %w", err)
	}

	layerBytes, err := readRange(ctx, bucket, key, int64(tth.LayerExtentsOffset), SizeLayerExtents(int(tth.Layers)), nil, "")
	if err != nil {
		return nil, fmt.Errorf("iris: fetch layer extents: %w", err)
	}
	layers, err := DecodeLayerExtents(layerBytes, int(tth.Layers))
	if err != nil {
		return nil, fmt.Errorf("iris: decode layer extents: %w", err)
	}
	extent := Extent{Width: tth.Width, Height: tth.Height, Layers: layers}
	if res := extent.Validate(); !res.OK() {
		return nil, fmt.Errorf("iris: %w", res)
	}

	tileBytes, err := readRange(ctx, bucket, key, int64(tth.TilesOffset), SizeTileOffsets(extent), nil, "")
	if err != nil {
		return nil, fmt.Errorf("iris: fetch tile offsets: %w", err)
	}
	tileLayers, err := DecodeTileOffsets(tileBytes, extent)
	if err != nil {
		return nil, fmt.Errorf("iris: decode tile offsets: %w", err)
	}

	table := TileTable{Format: tth.Format, Encoding: tth.Encoding, Extent: extent, Layers: tileLayers}
	if res := table.Validate(); !res.OK() {
		return nil, fmt.Errorf("iris: %w", res)
	}

	metadata, err := fetchRemoteMetadata(ctx, bucket, key, header.MetadataOffset)
	if err != nil {
		return nil, fmt.Errorf("iris: fetch metadata: %w", err)
	}

	return &RemoteSlide{bucket: bucket, key: key, codec: codec, header: header, table: table, metadata: metadata}, nil
}

func fetchRemoteMetadata(ctx context.Context, bucket Bucket, key string, metadataOffset uint64) (Metadata, error) {
	mhBytes, err := readRange(ctx, bucket, key, int64(metadataOffset), metadataHeaderSize, nil, "")
	if err != nil {
		return Metadata{}, err
	}
	mh, err := DecodeMetadataHeader(mhBytes)
	if err != nil {
		return Metadata{}, err
	}

	var icc []byte
	if mh.ICCSize > 0 {
		b, err := readRange(ctx, bucket, key, int64(mh.ICCOffset), int(mh.ICCSize), nil, "")
		if err != nil {
			return Metadata{}, err
		}
		icc, _, err = DecodeICCProfile(b)
		if err != nil {
			return Metadata{}, err
		}
	}

	var images []AssociatedImage
	if mh.ImagesSize > 0 {
		b, err := readRange(ctx, bucket, key, int64(mh.ImagesOffset), int(mh.ImagesSize), nil, "")
		if err != nil {
			return Metadata{}, err
		}
		images, _, err = DecodeAssociatedImages(b)
		if err != nil {
			return Metadata{}, err
		}
	}

	attrs := NewAttributes(MetadataUndefined)
	if mh.AttrsSize > 0 {
		b, err := readRange(ctx, bucket, key, int64(mh.AttrsOffset), int(mh.AttrsSize), nil, "")
		if err != nil {
			return Metadata{}, err
		}
		attrs, _, err = DecodeAttributes(b)
		if err != nil {
			return Metadata{}, err
		}
	}

	var ids []uint32
	var groups []string
	if mh.AnnosSize > 0 {
		b, err := readRange(ctx, bucket, key, int64(mh.AnnosOffset), int(mh.AnnosSize), nil, "")
		if err != nil {
			return Metadata{}, err
		}
		ids, groups, _, err = DecodeAnnotations(b)
		if err != nil {
			return Metadata{}, err
		}
	}

	return Metadata{
		CodecVersion:     mh.CodecVersion,
		Attributes:       attrs,
		AssociatedImages: images,
		ICCProfile:       icc,
		AnnotationIDs:    ids,
		AnnotationGroups: groups,
		MicronsPerPixel:  mh.MicronsPerPixel,
		Magnification:    mh.Magnification,
	}, nil
}

// readRange fetches exactly length bytes at offset and fails closed if the
// bucket returned fewer (a truncated or non-206 response further down the
// stack should already have errored, but a short read is still checked
// here rather than trusted). metrics may be nil (structural reads during
// OpenRemoteSlide aren't attributed to any kind yet).
func readRange(ctx context.Context, bucket Bucket, key string, offset int64, length int, metrics *Metrics, kind string) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	var timer *BucketRequestTimer
	if metrics != nil {
		timer = metrics.StartBucketRequest(kind)
	}
	status := "error"
	defer func() {
		if timer != nil {
			timer.Finish(status)
		}
	}()

	rc, err := bucket.NewRangeReader(ctx, key, offset, int64(length))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf := make([]byte, length)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, fmt.Errorf("short read at offset %d (wanted %d bytes): %w", offset, length, err)
	}
	status = "ok"
	return buf, nil
}

// GetSlideInfo mirrors Slide.GetSlideInfo for a remote container.
func (r *RemoteSlide) GetSlideInfo() SlideInfo {
	return SlideInfo{
		Format:   r.table.Format,
		Encoding: r.table.Encoding,
		Extent:   r.table.Extent,
		Metadata: r.metadata,
	}
}

// ReadSlideTile fetches one tile's bytes with a single ranged GET and
// decompresses it, mirroring Slide.ReadSlideTile's local-file counterpart.
func (r *RemoteSlide) ReadSlideTile(ctx context.Context, layer, index uint32, desiredFormat Format) ([]byte, error) {
	if int(layer) >= len(r.table.Layers) {
		return nil, fmt.Errorf("iris: layer %d out of range (have %d)", layer, len(r.table.Layers))
	}
	entries := r.table.Layers[layer]
	if int(index) >= len(entries) {
		return nil, fmt.Errorf("iris: tile index %d out of range (have %d)", index, len(entries))
	}
	entry := entries[index]
	if !entry.Valid() {
		return nil, fmt.Errorf("iris: tile (layer=%d,index=%d) has no data", layer, index)
	}

	data, err := readRange(ctx, r.bucket, r.key, int64(entry.Offset), int(entry.Size), r.metrics, "tile")
	if err != nil {
		return nil, fmt.Errorf("iris: fetch tile (layer=%d,index=%d): %w", layer, index, err)
	}
	return r.codec.DecompressTile(data, r.table.Encoding, desiredFormat, nil)
}

func (r *RemoteSlide) Close() error { return r.bucket.Close() }
