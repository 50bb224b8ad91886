// Command iris-encode builds a .iris container from a source slide.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/schollz/progressbar/v3"

	"github.com/iris-codec/iris-codec-go/iris"
)

var cli struct {
	Source        string `short:"s" required:"" help:"Path to the source slide."`
	Outdir        string `short:"o" required:"" help:"Directory the .iris container is written into."`
	Encoding      string `short:"e" enum:"jpeg,avif" default:"jpeg" help:"Tile compression codec (jpeg, avif)."`
	Derive        string `short:"d" enum:"2x,4x,use-source" default:"use-source" help:"Pyramid derivation strategy."`
	StripMetadata bool   `short:"sm" help:"Remove patient/study-identifying attributes from the output."`
	Concurrency   int    `short:"c" help:"Encoder thread count (default: number of CPUs)."`
	Quiet         bool   `help:"Suppress the progress bar."`
}

func encodingOf(s string) iris.Encoding {
	if s == "avif" {
		return iris.EncodingAVIF
	}
	return iris.EncodingJPEG
}

func strategyOf(s string) iris.DerivationStrategy {
	switch s {
	case "2x":
		return iris.Derive2x
	case "4x":
		return iris.Derive4x
	default:
		return iris.DeriveUseSource
	}
}

func main() {
	kong.Parse(&cli, kong.Description("Encode a slide into an Iris container."))

	logger := log.New(os.Stderr, "iris-encode: ", log.LstdFlags)
	enc := iris.NewEncoder(logger)

	info := iris.EncodeSlideInfo{
		SrcPath:         cli.Source,
		DstDir:          cli.Outdir,
		DesiredEncoding: encodingOf(cli.Encoding),
		Strategy:        strategyOf(cli.Derive),
		Concurrency:     cli.Concurrency,
		StripMetadata:   cli.StripMetadata,
	}

	done := make(chan iris.Result, 1)
	go func() { done <- enc.Encode(info) }()

	var bar *progressbar.ProgressBar
	if !cli.Quiet {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription(fmt.Sprintf("encoding %s", cli.Source)),
			progressbar.OptionShowCount(),
		)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case result := <-done:
			if bar != nil {
				bar.Set(100)
				bar.Close()
			}
			if !result.OK() {
				logger.Fatalf("encode failed: %v", result)
			}
			progress := enc.GetEncoderProgress()
			fmt.Println(progress.DstFilePath)
			return
		case <-ticker.C:
			progress := enc.GetEncoderProgress()
			if bar != nil {
				bar.Set(int(progress.Progress * 100))
			}
		}
	}
}
