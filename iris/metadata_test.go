package iris

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterIdentifyingAttributesI2S(t *testing.T) {
	a := NewAttributes(MetadataI2S)
	a.Values["patient_id"] = []byte("x")
	a.Values["patient_name"] = []byte("y")
	a.Values["grid"] = []byte("z")
	a.Values["uid"] = []byte("not stripped outside dicom")

	out := FilterIdentifyingAttributes(a)
	assert.NotContains(t, out.Values, "patient_id")
	assert.NotContains(t, out.Values, "patient_name")
	assert.Contains(t, out.Values, "grid")
	assert.Contains(t, out.Values, "uid")
}

func TestFilterIdentifyingAttributesDICOM(t *testing.T) {
	a := NewAttributes(MetadataDICOM)
	a.Values["StudyInstanceUID"] = []byte("1.2.3")
	a.Values["Rows"] = []byte("512")

	out := FilterIdentifyingAttributes(a)
	assert.NotContains(t, out.Values, "StudyInstanceUID")
	assert.Contains(t, out.Values, "Rows")
}

func TestAssociatedImageLabelsAndLookup(t *testing.T) {
	m := Metadata{AssociatedImages: []AssociatedImage{
		{Label: "thumbnail"},
		{Label: "macro"},
	}}
	assert.Equal(t, []string{"thumbnail", "macro"}, m.AssociatedImageLabels())

	img, ok := m.AssociatedImage("macro")
	assert.True(t, ok)
	assert.Equal(t, "macro", img.Label)

	_, ok = m.AssociatedImage("missing")
	assert.False(t, ok)
}
