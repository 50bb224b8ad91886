package iris

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Binary layout of the METADATA subblocks and the METADATA_HEADER that
// follows them, per the external interfaces section. Each subblock's
// contents are preceded by their own counts and per-entry lengths; the
// metadata header at the end holds each subblock's offset and size.

func putU32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func putU64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }
func getU32(src []byte) uint32    { return binary.LittleEndian.Uint32(src) }
func getU64(src []byte) uint64    { return binary.LittleEndian.Uint64(src) }

// EncodeICCProfile writes a length-prefixed byte block.
func EncodeICCProfile(icc []byte) []byte {
	out := make([]byte, 4+len(icc))
	putU32(out, uint32(len(icc)))
	copy(out[4:], icc)
	return out
}

func DecodeICCProfile(data []byte) ([]byte, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("iris: ICC profile block truncated")
	}
	n := int(getU32(data))
	if len(data) < 4+n {
		return nil, 0, fmt.Errorf("iris: ICC profile block truncated")
	}
	return data[4 : 4+n], 4 + n, nil
}

func encodeString(dst []byte, s string) int {
	putU32(dst, uint32(len(s)))
	copy(dst[4:], s)
	return 4 + len(s)
}

func decodeString(data []byte) (string, int, error) {
	if len(data) < 4 {
		return "", 0, fmt.Errorf("iris: string field truncated")
	}
	n := int(getU32(data))
	if len(data) < 4+n {
		return "", 0, fmt.Errorf("iris: string field truncated")
	}
	return string(data[4 : 4+n]), 4 + n, nil
}

func sizeString(s string) int { return 4 + len(s) }

func sizeAssociatedImage(img AssociatedImage) int {
	return sizeString(img.Label) + 4 + 4 + 1 + 1 + 2 + 4 + len(img.Bytes)
}

// EncodeAssociatedImages serializes the associated-images subblock: a u32
// count, then each image as label, width, height, encoding, sourceFormat,
// orientation, length-prefixed bytes.
func EncodeAssociatedImages(images []AssociatedImage) []byte {
	size := 4
	for _, img := range images {
		size += sizeAssociatedImage(img)
	}
	out := make([]byte, size)
	putU32(out, uint32(len(images)))
	pos := 4
	for _, img := range images {
		pos += encodeString(out[pos:], img.Label)
		putU32(out[pos:], img.Width)
		pos += 4
		putU32(out[pos:], img.Height)
		pos += 4
		out[pos] = byte(img.Encoding)
		pos++
		out[pos] = byte(img.SourceFormat)
		pos++
		binary.LittleEndian.PutUint16(out[pos:pos+2], uint16(img.Orientation))
		pos += 2
		putU32(out[pos:], uint32(len(img.Bytes)))
		pos += 4
		copy(out[pos:], img.Bytes)
		pos += len(img.Bytes)
	}
	return out
}

func DecodeAssociatedImages(data []byte) ([]AssociatedImage, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("iris: associated images block truncated")
	}
	count := int(getU32(data))
	pos := 4
	images := make([]AssociatedImage, count)
	for i := 0; i < count; i++ {
		label, n, err := decodeString(data[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n
		if len(data) < pos+4+4+1+1+2+4 {
			return nil, 0, fmt.Errorf("iris: associated image %d header truncated", i)
		}
		width := getU32(data[pos:])
		pos += 4
		height := getU32(data[pos:])
		pos += 4
		enc := ImageEncoding(data[pos])
		pos++
		srcFmt := Format(data[pos])
		pos++
		orient := ImageOrientation(binary.LittleEndian.Uint16(data[pos : pos+2]))
		pos += 2
		blen := int(getU32(data[pos:]))
		pos += 4
		if len(data) < pos+blen {
			return nil, 0, fmt.Errorf("iris: associated image %d bytes truncated", i)
		}
		images[i] = AssociatedImage{
			Label: label, Width: width, Height: height,
			Encoding: enc, SourceFormat: srcFmt, Orientation: orient,
			Bytes: data[pos : pos+blen],
		}
		pos += blen
	}
	return images, pos, nil
}

func sizeAttributes(a Attributes) int {
	size := 1 + 2 + 4 // type + version + count
	for k, v := range a.Values {
		size += sizeString(k) + 4 + len(v)
	}
	return size
}

// EncodeAttributes serializes an Attributes map: type, version, count, then
// each key/value pair as length-prefixed bytes.
func EncodeAttributes(a Attributes) []byte {
	out := make([]byte, sizeAttributes(a))
	out[0] = byte(a.Type)
	binary.LittleEndian.PutUint16(out[1:3], a.Version)
	putU32(out[3:7], uint32(len(a.Values)))
	pos := 7
	for k, v := range a.Values {
		pos += encodeString(out[pos:], k)
		putU32(out[pos:], uint32(len(v)))
		pos += 4
		copy(out[pos:], v)
		pos += len(v)
	}
	return out
}

func DecodeAttributes(data []byte) (Attributes, int, error) {
	if len(data) < 7 {
		return Attributes{}, 0, fmt.Errorf("iris: attributes block truncated")
	}
	a := NewAttributes(MetadataType(data[0]))
	a.Version = binary.LittleEndian.Uint16(data[1:3])
	count := int(getU32(data[3:7]))
	pos := 7
	for i := 0; i < count; i++ {
		key, n, err := decodeString(data[pos:])
		if err != nil {
			return Attributes{}, 0, err
		}
		pos += n
		if len(data) < pos+4 {
			return Attributes{}, 0, fmt.Errorf("iris: attribute %d value length truncated", i)
		}
		vlen := int(getU32(data[pos:]))
		pos += 4
		if len(data) < pos+vlen {
			return Attributes{}, 0, fmt.Errorf("iris: attribute %d value truncated", i)
		}
		a.Values[key] = data[pos : pos+vlen]
		pos += vlen
	}
	return a, pos, nil
}

func sizeAnnotations(ids []uint32, groups []string) int {
	size := 4 + 4*len(ids) + 4
	for _, g := range groups {
		size += sizeString(g)
	}
	return size
}

// EncodeAnnotations serializes the opaque annotation ID set and group name
// set; annotation content itself is never interpreted by this module.
func EncodeAnnotations(ids []uint32, groups []string) []byte {
	out := make([]byte, sizeAnnotations(ids, groups))
	putU32(out, uint32(len(ids)))
	pos := 4
	for _, id := range ids {
		putU32(out[pos:], id)
		pos += 4
	}
	putU32(out[pos:], uint32(len(groups)))
	pos += 4
	for _, g := range groups {
		pos += encodeString(out[pos:], g)
	}
	return out
}

func DecodeAnnotations(data []byte) ([]uint32, []string, int, error) {
	if len(data) < 4 {
		return nil, nil, 0, fmt.Errorf("iris: annotations block truncated")
	}
	idCount := int(getU32(data))
	pos := 4
	ids := make([]uint32, idCount)
	for i := 0; i < idCount; i++ {
		if len(data) < pos+4 {
			return nil, nil, 0, fmt.Errorf("iris: annotation id %d truncated", i)
		}
		ids[i] = getU32(data[pos:])
		pos += 4
	}
	if len(data) < pos+4 {
		return nil, nil, 0, fmt.Errorf("iris: annotation groups count truncated")
	}
	groupCount := int(getU32(data[pos:]))
	pos += 4
	groups := make([]string, groupCount)
	for i := 0; i < groupCount; i++ {
		g, n, err := decodeString(data[pos:])
		if err != nil {
			return nil, nil, 0, err
		}
		groups[i] = g
		pos += n
	}
	return ids, groups, pos, nil
}

// MetadataHeader closes the METADATA block with offset/size references into
// each preceding subblock. A NullOffset+0 size pair means "not present".
type MetadataHeader struct {
	CodecVersion           Version
	ICCOffset, ICCSize     uint64
	ImagesOffset, ImagesSize uint64
	AttrsOffset, AttrsSize uint64
	AnnosOffset, AnnosSize uint64
	MicronsPerPixel        float32
	Magnification          float32
}

func EncodeMetadataHeader(dst []byte, h MetadataHeader) error {
	if len(dst) < metadataHeaderSize {
		return fmt.Errorf("iris: metadata header buffer too small")
	}
	binary.LittleEndian.PutUint16(dst[0:2], h.CodecVersion.Major)
	binary.LittleEndian.PutUint16(dst[2:4], h.CodecVersion.Minor)
	binary.LittleEndian.PutUint16(dst[4:6], h.CodecVersion.Build)
	putU64(dst[6:14], h.ICCOffset)
	putU64(dst[14:22], h.ICCSize)
	putU64(dst[22:30], h.ImagesOffset)
	putU64(dst[30:38], h.ImagesSize)
	putU64(dst[38:46], h.AttrsOffset)
	putU64(dst[46:54], h.AttrsSize)
	putU64(dst[54:62], h.AnnosOffset)
	putU64(dst[62:70], h.AnnosSize)
	binary.LittleEndian.PutUint32(dst[70:74], math.Float32bits(h.MicronsPerPixel))
	binary.LittleEndian.PutUint32(dst[74:78], math.Float32bits(h.Magnification))
	return nil
}

func DecodeMetadataHeader(data []byte) (MetadataHeader, error) {
	if len(data) < metadataHeaderSize {
		return MetadataHeader{}, fmt.Errorf("iris: metadata header truncated")
	}
	return MetadataHeader{
		CodecVersion: Version{
			Major: binary.LittleEndian.Uint16(data[0:2]),
			Minor: binary.LittleEndian.Uint16(data[2:4]),
			Build: binary.LittleEndian.Uint16(data[4:6]),
		},
		ICCOffset:       getU64(data[6:14]),
		ICCSize:         getU64(data[14:22]),
		ImagesOffset:    getU64(data[22:30]),
		ImagesSize:      getU64(data[30:38]),
		AttrsOffset:     getU64(data[38:46]),
		AttrsSize:       getU64(data[46:54]),
		AnnosOffset:     getU64(data[54:62]),
		AnnosSize:       getU64(data[62:70]),
		MicronsPerPixel: math.Float32frombits(binary.LittleEndian.Uint32(data[70:74])),
		Magnification:   math.Float32frombits(binary.LittleEndian.Uint32(data[74:78])),
	}, nil
}
