// Command iris-serve fronts a bucket of .iris containers with an HTTP tile
// server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/iris-codec/iris-codec-go/iris"
)

var cli struct {
	Bucket    string `arg:"" help:"Bucket root: a path, file://, http(s)://, s3://, gs://, or azblob:// URL."`
	Port      string `short:"p" default:"8080" help:"Port to listen on."`
	Cors      string `help:"Value for Access-Control-Allow-Origin; empty disables CORS."`
	CacheSize int    `default:"16" help:"Number of .iris containers to keep warm in memory."`
}

func main() {
	kong.Parse(&cli, kong.Description("Serve Iris container tiles over HTTP."))

	logger := log.New(os.Stderr, "iris-serve: ", log.LstdFlags)

	metrics := iris.NewMetrics("remote", logger)
	// A bare path has no scheme; pass it as the prefix so NewServer turns it
	// into a file:// root.
	bucketURL, prefix := cli.Bucket, ""
	if !strings.Contains(cli.Bucket, "://") {
		bucketURL, prefix = "", cli.Bucket
	}
	server, err := iris.NewServer(context.Background(), bucketURL, prefix, logger, cli.CacheSize, cli.Cors, nil)
	if err != nil {
		logger.Fatalf("failed to open bucket %s: %v", cli.Bucket, err)
	}
	server.SetMetrics(metrics)
	server.Start()

	logger.Printf("serving %s on :%s (cors=%q)", cli.Bucket, cli.Port, cli.Cors)
	logger.Fatal(http.ListenAndServe(":"+cli.Port, server.Handler()))
}
