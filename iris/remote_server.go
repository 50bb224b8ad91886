package iris

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/cors"
)

// Server is an HTTP frontend over a bucket of .iris containers: each
// container is opened once (a RemoteSlide) and kept warm in an LRU cache,
// unlike the directory-walking cache a tiled-vector format needs, since an
// Iris container's whole tile table fits in memory after one open.
//
// One request-owning goroutine serializes cache access the same way the
// teacher's tile server does, so concurrent requests for the same slide
// share one OpenRemoteSlide instead of racing to open it N times.
type Server struct {
	reqs      chan slideRequest
	bucket    Bucket
	logger    *log.Logger
	cacheSize int
	cors      string
	codec     *CodecContext
	metrics   *Metrics
}

type slideRequest struct {
	name  string
	value chan slideResult
}

type slideResult struct {
	slide *RemoteSlide
	err   error
}

type cacheEntry struct {
	name  string
	slide *RemoteSlide
}

// NewServer opens bucketURL (a file://, http(s)://, s3://, gs://, or
// azblob:// root) and constructs a Server over it. cacheSize bounds the
// number of concurrently warm RemoteSlides.
func NewServer(ctx context.Context, bucketURL, prefix string, logger *log.Logger, cacheSize int, cors string, codec *CodecContext) (*Server, error) {
	bucketURL, _, err := NormalizeBucketKey(bucketURL, prefix, "")
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, bucketURL, prefix)
	if err != nil {
		return nil, err
	}
	return NewServerWithBucket(bucket, logger, cacheSize, cors, codec), nil
}

// NewServerWithBucket builds a Server over an already-open Bucket.
func NewServerWithBucket(bucket Bucket, logger *log.Logger, cacheSize int, cors string, codec *CodecContext) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if cacheSize <= 0 {
		cacheSize = 16
	}
	if codec == nil {
		codec = NewCodecContext(nil, nil)
	}
	return &Server{
		reqs:      make(chan slideRequest, 8),
		bucket:    bucket,
		logger:    logger,
		cacheSize: cacheSize,
		cors:      cors,
		codec:     codec,
	}
}

// SetMetrics attaches a Metrics sink whose bucket-request counters are
// shared with every RemoteSlide this server opens.
func (s *Server) SetMetrics(m *Metrics) { s.metrics = m }

// Start launches the cache-owning goroutine. Call once before Get/ServeHTTP.
func (s *Server) Start() {
	go func() {
		cache := make(map[string]*list.Element)
		inflight := make(map[string][]slideRequest)
		type opened struct {
			name  string
			slide *RemoteSlide
			err   error
		}
		resps := make(chan opened, 8)
		evictList := list.New()
		ctx := context.Background()

		for {
			select {
			case req := <-s.reqs:
				if el, ok := cache[req.name]; ok {
					evictList.MoveToFront(el)
					req.value <- slideResult{slide: el.Value.(*cacheEntry).slide}
					continue
				}
				if _, ok := inflight[req.name]; ok {
					inflight[req.name] = append(inflight[req.name], req)
					continue
				}
				inflight[req.name] = []slideRequest{req}
				go func(name string) {
					slide, err := OpenRemoteSlide(ctx, s.bucket, name+".iris", s.codec)
					if err == nil {
						slide.SetMetrics(s.metrics)
					}
					resps <- opened{name: name, slide: slide, err: err}
				}(req.name)

			case resp := <-resps:
				waiters := inflight[resp.name]
				delete(inflight, resp.name)
				for _, w := range waiters {
					w.value <- slideResult{slide: resp.slide, err: resp.err}
				}
				if resp.err != nil {
					continue
				}
				entry := evictList.PushFront(&cacheEntry{name: resp.name, slide: resp.slide})
				cache[resp.name] = entry
				for evictList.Len() > s.cacheSize {
					oldest := evictList.Back()
					if oldest == nil {
						break
					}
					evictList.Remove(oldest)
					ent := oldest.Value.(*cacheEntry)
					ent.slide.Close()
					delete(cache, ent.name)
				}
			}
		}
	}()
}

func (s *Server) openSlide(name string) (*RemoteSlide, error) {
	req := slideRequest{name: name, value: make(chan slideResult, 1)}
	s.reqs <- req
	res := <-req.value
	return res.slide, res.err
}

var tilePattern = regexp.MustCompile(`^/([-A-Za-z0-9_/]+)/(\d+)/(\d+)\.([a-z]+)$`)
var metadataPattern = regexp.MustCompile(`^/([-A-Za-z0-9_/]+)/metadata$`)
var infoPattern = regexp.MustCompile(`^/([-A-Za-z0-9_/]+)/info$`)

func encodingExtension(e Encoding) string {
	switch e {
	case EncodingAVIF:
		return "avif"
	default:
		return "jpg"
	}
}

func encodingContentType(e Encoding) string {
	switch e {
	case EncodingAVIF:
		return "image/avif"
	default:
		return "image/jpeg"
	}
}

func (s *Server) getTile(ctx context.Context, headers map[string]string, name string, layer, index uint64, ext string) (int, []byte) {
	slide, err := s.openSlide(name)
	if err != nil {
		return 404, []byte("archive not found")
	}
	info := slide.GetSlideInfo()
	if ext != encodingExtension(info.Encoding) {
		return 400, []byte(fmt.Sprintf("path mismatch: archive is encoded as %s", info.Encoding))
	}
	// Serve the stored (still-compressed) tile bytes under the encoding's
	// content type rather than decoded pixels.
	if int(layer) >= len(slide.table.Layers) || int(index) >= len(slide.table.Layers[layer]) {
		return 404, []byte("tile not found")
	}
	entry := slide.table.Layers[layer][index]
	if !entry.Valid() {
		return 404, []byte("tile not found")
	}
	data, err := readRange(ctx, slide.bucket, slide.key, int64(entry.Offset), int(entry.Size), slide.metrics, "tile")
	if err != nil {
		return 404, []byte("tile not found")
	}
	headers["Content-Type"] = encodingContentType(info.Encoding)
	return 200, data
}

func (s *Server) getMetadata(name string) (int, []byte) {
	slide, err := s.openSlide(name)
	if err != nil {
		return 404, []byte("archive not found")
	}
	info := slide.GetSlideInfo()
	body, err := json.Marshal(struct {
		Width           uint32   `json:"width"`
		Height          uint32   `json:"height"`
		Layers          int      `json:"layers"`
		Encoding        string   `json:"encoding"`
		MicronsPerPixel float32  `json:"micronsPerPixel"`
		Magnification   float32  `json:"magnification"`
		Labels          []string `json:"associatedImages"`
	}{
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          len(info.Extent.Layers),
		Encoding:        info.Encoding.String(),
		MicronsPerPixel: info.Metadata.MicronsPerPixel,
		Magnification:   info.Metadata.Magnification,
		Labels:          info.Metadata.AssociatedImageLabels(),
	})
	if err != nil {
		return 500, []byte("I/O error")
	}
	return 200, body
}

func (s *Server) get(ctx context.Context, unsanitizedPath string) (status int, headers map[string]string, body []byte) {
	headers = make(map[string]string)
	if s.cors != "" {
		headers["Access-Control-Allow-Origin"] = s.cors
	}
	if m := tilePattern.FindStringSubmatch(unsanitizedPath); m != nil {
		layer, _ := strconv.ParseUint(m[2], 10, 32)
		index, _ := strconv.ParseUint(m[3], 10, 32)
		status, body = s.getTile(ctx, headers, m[1], layer, index, m[4])
		return
	}
	if m := metadataPattern.FindStringSubmatch(unsanitizedPath); m != nil {
		status, body = s.getMetadata(m[1])
		headers["Content-Type"] = "application/json"
		return
	}
	if m := infoPattern.FindStringSubmatch(unsanitizedPath); m != nil {
		status, body = s.getMetadata(m[1])
		headers["Content-Type"] = "application/json"
		return
	}
	if unsanitizedPath == "/" {
		return 204, headers, nil
	}
	return 404, headers, []byte("path not found")
}

// Get serves one request path, returning status, headers, and body —
// usable outside net/http (e.g. from the Caddy module's ServeHTTP).
func (s *Server) Get(ctx context.Context, path string) (int, map[string]string, []byte) {
	return s.get(ctx, path)
}

// ServeHTTP adapts Get to the standard http.Handler contract. The only CORS
// header it sets is the Access-Control-Allow-Origin that get adds when a
// CORS origin is configured; Handler() adds full CORS middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(405)
		return
	}
	start := time.Now()
	status, headers, body := s.get(r.Context(), r.URL.Path)
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	if r.Method == http.MethodGet {
		w.Write(body)
	}
	s.logger.Printf("served %s %d in %s", r.URL.Path, status, time.Since(start))
}

// Handler wraps the Server in rs/cors middleware when a CORS origin is
// configured, matching the optional CORS layer cmd/iris-serve exposes;
// callers embedding Server directly in another router (the Caddy module)
// use Get/ServeHTTP, which add only the Access-Control-Allow-Origin header.
func (s *Server) Handler() http.Handler {
	if s.cors == "" {
		return http.HandlerFunc(s.ServeHTTP)
	}
	c := cors.New(cors.Options{
		AllowedOrigins: []string{s.cors},
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})
	return c.Handler(http.HandlerFunc(s.ServeHTTP))
}
