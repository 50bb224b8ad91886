// Command iris-show inspects a .iris container's header, tile table, and
// metadata without decoding any tile pixels.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/iris-codec/iris-codec-go/iris"
)

var cli struct {
	Source string `arg:"" help:"Path to the .iris container."`
}

func main() {
	kong.Parse(&cli, kong.Description("Inspect an Iris container."))

	f, err := iris.Open(cli.Source, false)
	if err != nil {
		fmt.Printf("failed to open %s: %v\n", cli.Source, err)
		os.Exit(1)
	}
	defer f.Close()

	f.ResizeRLock()
	data := f.Ptr()
	res := iris.ValidateFileStructure(data)
	if !res.OK() {
		f.ResizeRUnlock()
		fmt.Printf("invalid container: %v\n", res)
		os.Exit(1)
	}
	abs, res := iris.AbstractFileStructure(data)
	f.ResizeRUnlock()
	if !res.OK() {
		fmt.Printf("failed to abstract container: %v\n", res)
		os.Exit(1)
	}

	info := iris.SlideInfo{
		Format:   abs.TileTable.Format,
		Encoding: abs.TileTable.Encoding,
		Extent:   abs.TileTable.Extent,
		Metadata: abs.Metadata,
	}

	fmt.Printf("iris container: %s\n", cli.Source)
	fmt.Printf("file size: %s\n", humanize.Bytes(abs.Header.FileSize))
	fmt.Printf("revision: %d\n", abs.Header.Revision)
	fmt.Printf("tile encoding: %s\n", info.Encoding)
	fmt.Printf("slide extent: %dx%d px, %d layers\n", info.Extent.Width, info.Extent.Height, len(info.Extent.Layers))
	for i, l := range info.Extent.Layers {
		fmt.Printf("  layer %d: %dx%d tiles, scale=%.3f, downsample=%.3f\n", i, l.XTiles, l.YTiles, l.Scale, l.Downsample)
	}
	fmt.Printf("codec version: %s\n", info.Metadata.CodecVersion)
	fmt.Printf("microns per pixel: %.4f\n", info.Metadata.MicronsPerPixel)
	fmt.Printf("magnification: %.1f\n", info.Metadata.Magnification)
	if len(info.Metadata.ICCProfile) > 0 {
		fmt.Printf("ICC profile: %s\n", humanize.Bytes(uint64(len(info.Metadata.ICCProfile))))
	}
	if labels := info.Metadata.AssociatedImageLabels(); len(labels) > 0 {
		fmt.Printf("associated images: %v\n", labels)
	}
	for k, v := range info.Metadata.Attributes.Values {
		fmt.Printf("attribute %s: %s\n", k, humanize.Bytes(uint64(len(v))))
	}
}
