package iris

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// overProvisionBytes is how much extra space a resize grabs at once,
// amortizing the exclusive-lock section across roughly 100,000 tiles.
const overProvisionBytes = 500 * 1024 * 1024

// EncodeSlideInfo are the inputs to one encoder run.
type EncodeSlideInfo struct {
	SrcPath         string
	DstDir          string
	Source          SourceReader // supplied directly to bypass sniffing SrcPath
	DesiredEncoding Encoding
	DesiredFormat   Format
	Strategy        DerivationStrategy
	Concurrency     int
	Quality         Quality
	Subsampling     Subsampling
	StripMetadata   bool
	Codec           *CodecContext
}

// Encoder is the thread-pool-orchestrated read -> derive -> compress ->
// write pipeline. One Encoder handles one run; construct a new one per
// Encode call.
type Encoder struct {
	logger    *log.Logger
	metrics   *Metrics
	status    atomic.Int32
	completed atomic.Uint64
	total     atomic.Uint64
	progress  progressState
}

func NewEncoder(logger *log.Logger) *Encoder {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	e := &Encoder{logger: logger}
	e.status.Store(int32(EncoderInactive))
	return e
}

// SetMetrics attaches a Metrics sink; nil is valid and disables
// instrumentation (the zero value of Encoder has no metrics).
func (e *Encoder) SetMetrics(m *Metrics) { e.metrics = m }

// GetEncoderProgress is the polled progress snapshot.
func (e *Encoder) GetEncoderProgress() EncoderProgress {
	dst, errMsg := e.progress.snapshot()
	total := e.total.Load()
	var frac float32
	if total > 0 {
		frac = float32(e.completed.Load()) / float32(total)
	}
	return EncoderProgress{
		Status:      EncoderStatus(e.status.Load()),
		Progress:    frac,
		DstFilePath: dst,
		ErrorMsg:    errMsg,
	}
}

// InterruptEncoder sets the encoder status to error; encoder threads
// observe this at each tile boundary and exit without rollback.
func (e *Encoder) InterruptEncoder() {
	e.status.CompareAndSwap(int32(EncoderActive), int32(EncoderError))
}

func (e *Encoder) interrupted() bool {
	return EncoderStatus(e.status.Load()) == EncoderError
}

func (e *Encoder) fail(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	e.status.Store(int32(EncoderError))
	e.progress.setError(err.Error())
	return err
}

// Encode runs the full dispatch lifecycle described in the encoder
// pipeline component: open source, derive the output extent, launch
// N+1 threads (supervisor + N encoders), validate, write blocks bottom-up,
// rename into place.
func (e *Encoder) Encode(info EncodeSlideInfo) (result Result) {
	if !e.status.CompareAndSwap(int32(EncoderInactive), int32(EncoderActive)) {
		return ResultFailure("encoder is already active")
	}
	defer func() {
		if EncoderStatus(e.status.Load()) == EncoderActive {
			e.status.Store(int32(EncoderInactive))
		}
	}()
	if e.metrics != nil {
		timer := e.metrics.StartEncode()
		defer func() { timer.Finish(result) }()
	}

	source := info.Source
	var err error
	if source == nil {
		source, err = OpenSourceReader(info.SrcPath, info.Codec)
		if err != nil {
			return Result{Flag: Failure, Message: e.fail("open source: %v", err).Error()}
		}
	}

	outExtent, err := DeriveExtent(source.SourceExtent(), info.Strategy)
	if err != nil {
		return Result{Flag: Failure, Message: e.fail("derive extent: %v", err).Error()}
	}

	codec := info.Codec
	if codec == nil {
		codec = NewCodecContext(nil, nil)
	}

	stem := stemOf(info.SrcPath)
	dstPath := filepath.Join(info.DstDir, stem+".iris")
	e.progress.mu.Lock()
	e.progress.dstFilePath = dstPath
	e.progress.mu.Unlock()

	cacheFile, err := CreateCache(false)
	if err != nil {
		return Result{Flag: Failure, Message: e.fail("create cache file: %v", err).Error()}
	}
	renamed, closed := false, false
	defer func() {
		if !closed {
			cacheFile.Close()
		}
		if !renamed {
			cacheFile.Delete()
		}
	}()

	tileTable := NewUninitializedTileTable(info.DesiredFormat, info.DesiredEncoding, outExtent)
	quality := info.Quality
	if quality == 0 {
		quality = QualityDefault
	}
	subsampling := info.Subsampling

	var fileOffset atomic.Uint64
	fileOffset.Store(FileHeaderSize)

	total := 0
	for _, l := range outExtent.Layers {
		total += l.TileCount()
	}
	e.total.Store(uint64(total))

	concurrency := info.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	compressAndWrite := func(pixels []byte, format Format) (TileEntry, error) {
		return compressAndWriteTile(cacheFile, &fileOffset, codec, pixels, format, info.DesiredEncoding, quality, subsampling)
	}

	if info.Strategy == DeriveUseSource {
		err = e.runUseSource(source, tileTable, info.DesiredFormat, concurrency, compressAndWrite)
	} else {
		err = e.runDerived(source, tileTable, outExtent, info.Strategy, info.DesiredFormat, concurrency, compressAndWrite)
	}
	if err != nil {
		return Result{Flag: Failure, Message: err.Error()}
	}
	if e.interrupted() {
		return Result{Flag: Failure, Message: "encoder interrupted"}
	}

	if !tileTable.AllComplete() {
		return Result{Flag: Failure, Message: e.fail("not every tile was written").Error()}
	}

	metadata := source.SourceMetadata()
	metadata.CodecVersion = CurrentVersion
	metadata.AssociatedImages = source.SourceAssociatedImages()
	if info.StripMetadata {
		metadata.Attributes = FilterIdentifyingAttributes(metadata.Attributes)
	}

	tileBlobEnd := fileOffset.Load()
	if err := writeContainerBlocks(cacheFile, tileBlobEnd, tileTable, metadata); err != nil {
		return Result{Flag: Failure, Message: e.fail("write container blocks: %v", err).Error()}
	}

	if err := cacheFile.Close(); err != nil {
		return Result{Flag: Failure, Message: e.fail("close cache file: %v", err).Error()}
	}
	closed = true
	if err := cacheFile.Rename(dstPath); err != nil {
		return Result{Flag: Failure, Message: e.fail("rename to %s: %v", dstPath, err).Error()}
	}
	renamed = true

	e.status.Store(int32(EncoderInactive))
	return ResultOK()
}

// writeContainerBlocks lays out and writes every block that follows the
// tile blob, bottom-up: tile offsets, layer extents, tile table header,
// metadata subblocks, metadata header. The FILE_HEADER is written last so a
// reader that can parse one always sees a fully-written file.
func writeContainerBlocks(file *File, tileBlobEnd uint64, tileTable TileTable, metadata Metadata) error {
	tileOffsetsOff := tileBlobEnd
	tileOffsetsSize := uint64(SizeTileOffsets(tileTable.Extent))
	layerExtentsOff := tileOffsetsOff + tileOffsetsSize
	layerExtentsSize := uint64(SizeLayerExtents(len(tileTable.Extent.Layers)))
	tileTableHeaderOff := layerExtentsOff + layerExtentsSize

	iccBlock := EncodeICCProfile(metadata.ICCProfile)
	imagesBlock := EncodeAssociatedImages(metadata.AssociatedImages)
	attrsBlock := EncodeAttributes(metadata.Attributes)
	annosBlock := EncodeAnnotations(metadata.AnnotationIDs, metadata.AnnotationGroups)

	iccOff := tileTableHeaderOff + uint64(tileTableHeaderSize)
	imagesOff := iccOff + uint64(len(iccBlock))
	attrsOff := imagesOff + uint64(len(imagesBlock))
	annosOff := attrsOff + uint64(len(annosBlock))
	metadataHeaderOff := annosOff + uint64(len(annosBlock))
	totalSize := metadataHeaderOff + uint64(metadataHeaderSize)

	if err := file.Resize(int64(totalSize), false); err != nil {
		return fmt.Errorf("resize for container blocks: %w", err)
	}

	file.ResizeRLock()
	ptr := file.Ptr()
	if err := EncodeTileOffsets(ptr[tileOffsetsOff:], tileTable.Layers); err != nil {
		file.ResizeRUnlock()
		return err
	}
	if err := EncodeLayerExtents(ptr[layerExtentsOff:], tileTable.Extent.Layers); err != nil {
		file.ResizeRUnlock()
		return err
	}
	tth := TileTableHeader{
		Encoding:           tileTable.Encoding,
		Format:             tileTable.Format,
		TilesOffset:        tileOffsetsOff,
		LayerExtentsOffset: layerExtentsOff,
		Layers:             uint32(len(tileTable.Extent.Layers)),
		Width:              tileTable.Extent.Width,
		Height:             tileTable.Extent.Height,
	}
	if err := EncodeTileTableHeader(ptr[tileTableHeaderOff:], tth, tileTableHeaderOff); err != nil {
		file.ResizeRUnlock()
		return err
	}
	copy(ptr[iccOff:], iccBlock)
	copy(ptr[imagesOff:], imagesBlock)
	copy(ptr[attrsOff:], attrsBlock)
	copy(ptr[annosOff:], annosBlock)

	mh := MetadataHeader{
		CodecVersion:    metadata.CodecVersion,
		ICCOffset:       iccOff,
		ICCSize:         uint64(len(iccBlock)),
		ImagesOffset:    imagesOff,
		ImagesSize:      uint64(len(imagesBlock)),
		AttrsOffset:     attrsOff,
		AttrsSize:       uint64(len(attrsBlock)),
		AnnosOffset:     annosOff,
		AnnosSize:       uint64(len(annosBlock)),
		MicronsPerPixel: metadata.MicronsPerPixel,
		Magnification:   metadata.Magnification,
	}
	if err := EncodeMetadataHeader(ptr[metadataHeaderOff:], mh); err != nil {
		file.ResizeRUnlock()
		return err
	}
	file.ResizeRUnlock()

	file.ResizeRLock()
	fh := FileHeader{
		FileSize:        totalSize,
		Revision:        1,
		TileTableOffset: tileTableHeaderOff,
		MetadataOffset:  metadataHeaderOff,
	}
	err := EncodeFileHeader(file.Ptr()[0:], fh)
	file.ResizeRUnlock()
	return err
}

// CurrentVersion is the codec version this encoder stamps into files it
// produces.
var CurrentVersion = Version{Major: 2025, Minor: 1, Build: 0}

// runUseSource walks every (layer, index) pair of the output extent,
// partitioning work across concurrency goroutines via an atomic cursor,
// and recompresses each tile as read from source.
func (e *Encoder) runUseSource(source SourceReader, tileTable TileTable, format Format, concurrency int, write func([]byte, Format) (TileEntry, error)) error {
	type workItem struct{ layer, index uint32 }
	var items []workItem
	for li, l := range tileTable.Extent.Layers {
		for idx := 0; idx < l.TileCount(); idx++ {
			items = append(items, workItem{uint32(li), uint32(idx)})
		}
	}

	var cursor atomic.Uint64
	g := new(errgroup.Group)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				if e.interrupted() {
					return nil
				}
				i := cursor.Add(1) - 1
				if i >= uint64(len(items)) {
					return nil
				}
				item := items[i]
				pixels, err := source.ReadTile(item.layer, item.index, format)
				if err != nil {
					return e.fail("read source tile (layer=%d,index=%d): %v", item.layer, item.index, err)
				}
				entry, err := write(pixels, format)
				if err != nil {
					if e.metrics != nil {
						e.metrics.ObserveTileWriteError("source")
					}
					return e.fail("compress/write tile (layer=%d,index=%d): %v", item.layer, item.index, err)
				}
				tileTable.Layers[item.layer][item.index] = entry
				e.completed.Add(1)
				if e.metrics != nil {
					e.metrics.ObserveTileWritten("source")
				}
			}
		})
	}
	return g.Wait()
}

// runDerived walks only the finest (source-resolution) layer, compressing
// and writing each source tile directly, and cascades a downsample merge
// into every ancestor layer via an auxiliary task pool, per the derivation
// cascade described for the encoder's derive_2x/derive_4x path.
func (e *Encoder) runDerived(source SourceReader, tileTable TileTable, extent Extent, strategy DerivationStrategy, format Format, concurrency int, write func([]byte, Format) (TileEntry, error)) error {
	finest := len(extent.Layers) - 1
	if finest < 0 {
		return e.fail("derived extent has no layers")
	}
	trackers := make([][]*TileTracker, finest) // one array per layer below finest
	for layer := 0; layer < finest; layer++ {
		l := extent.Layers[layer]
		childLayer := extent.Layers[layer+1]
		arr := make([]*TileTracker, l.TileCount())
		for idx := range arr {
			px := uint32(idx) % l.XTiles
			py := uint32(idx) / l.XTiles
			mask := EdgeMask(px, py, childLayer.XTiles, childLayer.YTiles, strategy)
			tracker := newTileTracker(allOnesMask(strategy))
			tracker.subtile.Store(mask)
			arr[idx] = tracker
		}
		trackers[layer] = arr
	}

	pool := NewTaskPool(concurrency, extent.Layers[finest].TileCount())
	step := childrenPerAxis(strategy)
	shift := uint(1)
	if strategy == Derive4x {
		shift = 2
	}

	var cascade func(layer int, index uint32, pixels []byte)
	cascadeWrite := func(layer int, index uint32, pixels []byte) {
		entry, err := write(pixels, format)
		if err != nil {
			if e.metrics != nil {
				e.metrics.ObserveTileWriteError("derived")
			}
			e.fail("compress/write derived tile (layer=%d,index=%d): %v", layer, index, err)
			return
		}
		tileTable.Layers[layer][index] = entry
		e.completed.Add(1)
		if e.metrics != nil {
			e.metrics.ObserveTileWritten("derived")
		}
		cascade(layer, index, pixels)
	}
	cascade = func(layer int, index uint32, pixels []byte) {
		if layer == 0 {
			return
		}
		l := extent.Layers[layer]
		x, y := index%l.XTiles, index/l.XTiles
		parentLayer := layer - 1
		pl := extent.Layers[parentLayer]
		px, py := x>>shift, y>>shift
		parentIndex := py*pl.XTiles + px
		tracker := trackers[parentLayer][parentIndex]
		subX, subY := int(x&uint32(step-1)), int(y&uint32(step-1))

		result := tracker.MergeChild(format, subX, subY, strategy, pixels)
		if result.ParentComplete {
			canvas := result.Canvas
			if e.metrics != nil {
				e.metrics.ObserveCascadeTask(strategy)
				e.metrics.SetTaskQueueDepth(len(pool.tasks))
			}
			_ = pool.IssueTask(func() {
				cascadeWrite(parentLayer, parentIndex, canvas)
			})
		}
	}

	var cursor atomic.Uint64
	finestTileCount := extent.Layers[finest].TileCount()
	g := new(errgroup.Group)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				if e.interrupted() {
					return nil
				}
				i := cursor.Add(1) - 1
				if i >= uint64(finestTileCount) {
					return nil
				}
				index := uint32(i)
				pixels, err := source.ReadTile(uint32(finest), index, format)
				if err != nil {
					return e.fail("read source tile (index=%d): %v", index, err)
				}
				entry, err := write(pixels, format)
				if err != nil {
					if e.metrics != nil {
						e.metrics.ObserveTileWriteError("source")
					}
					return e.fail("compress/write source tile (index=%d): %v", index, err)
				}
				tileTable.Layers[finest][index] = entry
				e.completed.Add(1)
				if e.metrics != nil {
					e.metrics.ObserveTileWritten("source")
				}
				cascade(finest, index, pixels)
			}
		})
	}
	err := g.Wait()
	pool.WaitUntilComplete()
	pool.TerminateExecution()
	return err
}

func compressAndWriteTile(file *File, fileOffset *atomic.Uint64, codec *CodecContext, pixels []byte, format Format, encoding Encoding, quality Quality, subsampling Subsampling) (TileEntry, error) {
	bytes, err := codec.CompressTile(pixels, format, encoding, quality, subsampling)
	if err != nil {
		return TileEntry{}, err
	}
	size := uint64(len(bytes))
	offset := fileOffset.Add(size) - size

	file.ResizeRLock()
	if offset+size > uint64(file.Size()) {
		file.ResizeRUnlock()
		grow := overProvisionBytes
		needed := offset + size - uint64(file.Size())
		if uint64(grow) < needed {
			grow = int(needed)
		}
		if err := file.Resize(file.Size()+int64(grow), true); err != nil {
			return TileEntry{}, fmt.Errorf("resize: %w", err)
		}
		file.ResizeRLock()
	}
	copy(file.Ptr()[offset:offset+size], bytes)
	file.ResizeRUnlock()

	return TileEntry{Offset: offset, Size: uint32(size)}, nil
}
