package iris

import "strings"

// MetadataType tags the convention an Attributes map follows.
type MetadataType uint8

const (
	MetadataUndefined MetadataType = iota
	MetadataI2S
	MetadataDICOM
	MetadataFreeText = MetadataI2S
)

// Attributes is a key-value metadata map plus the convention it follows.
// Keys are unique by construction (it's a map).
type Attributes struct {
	Type    MetadataType
	Version uint16
	Values  map[string][]byte
}

func NewAttributes(t MetadataType) Attributes {
	return Attributes{Type: t, Values: make(map[string][]byte)}
}

// identifyingKeySubstrings are the lower-cased substrings that mark an
// attribute key as carrying patient- or study-identifying information.
// This resolves the strip_metadata open question: the source plumbs the
// flag through inconsistently, so this is the documented policy decision.
var identifyingKeySubstrings = []string{
	"patient_id", "patient_name", "study_uid", "series_uid",
	"accession_number", "uid",
}

func isIdentifyingKey(key string, t MetadataType) bool {
	lower := strings.ToLower(key)
	for _, s := range identifyingKeySubstrings {
		if s == "uid" {
			// "uid" alone is too broad outside DICOM-tagged attributes
			// (e.g. a free-text "fluid_volume" key would false-positive); only
			// treat it as identifying when the attribute set is DICOM.
			if t == MetadataDICOM && strings.Contains(lower, s) {
				return true
			}
			continue
		}
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// FilterIdentifyingAttributes returns a copy of attrs with any key that
// looks patient- or study-identifying removed. Applied when the encoder's
// strip_metadata flag is set.
func FilterIdentifyingAttributes(attrs Attributes) Attributes {
	out := NewAttributes(attrs.Type)
	out.Version = attrs.Version
	for k, v := range attrs.Values {
		if isIdentifyingKey(k, attrs.Type) {
			continue
		}
		out.Values[k] = v
	}
	return out
}

// AssociatedImage is a non-pyramid auxiliary image (label, thumbnail, macro)
// stored alongside the slide.
type AssociatedImage struct {
	Label        string
	Width        uint32
	Height       uint32
	Encoding     ImageEncoding
	SourceFormat Format
	Orientation  ImageOrientation
	Bytes        []byte
}

// Metadata is the slide-level information carried in a container's metadata
// block.
type Metadata struct {
	CodecVersion     Version
	Attributes       Attributes
	AssociatedImages []AssociatedImage
	ICCProfile       []byte
	AnnotationIDs    []uint32
	AnnotationGroups []string
	// MicronsPerPixel and Magnification are normalized to layer 0.
	MicronsPerPixel float32
	Magnification   float32
}

// AssociatedImageLabels returns the set of associated image labels, in the
// order they were added.
func (m Metadata) AssociatedImageLabels() []string {
	labels := make([]string, len(m.AssociatedImages))
	for i, img := range m.AssociatedImages {
		labels[i] = img.Label
	}
	return labels
}

func (m Metadata) AssociatedImage(label string) (AssociatedImage, bool) {
	for _, img := range m.AssociatedImages {
		if img.Label == label {
			return img, true
		}
	}
	return AssociatedImage{}, false
}
