package upload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/eventials/go-tus"
)

// Default chunk size when UploaderOptions leaves it unset.
const defaultChunkSize = 2 * 1024 * 1024

// UploaderOptions configures a tus Uploader.
type UploaderOptions struct {
	ChunkSize  int64
	Store      tus.Store // nil disables resumption
	Limiter    *BandwidthLimiter
	HTTPClient *http.Client
}

// Uploaded describes a finished tus upload. Name is the file name the server
// reported in Upload-Metadata on the final PATCH, or the local name when it
// sent none.
type Uploaded struct {
	URL  string
	Name string
}

// Uploader sends files to a tus endpoint with go-tus.
type Uploader struct {
	endpoint string
	opts     UploaderOptions
	logger   *slog.Logger
}

// NewUploader creates an Uploader for the tus creation endpoint.
func NewUploader(endpoint string, opts UploaderOptions, logger *slog.Logger) *Uploader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Uploader{endpoint: endpoint, opts: opts, logger: logger}
}

// Upload creates or resumes the tus upload for f.
// A non-empty token is sent verbatim as the Authorization header.
func (u *Uploader) Upload(ctx context.Context, f *File, token string) (Uploaded, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return Uploaded{}, fmt.Errorf("upload: opening %s: %w", f.Path, err)
	}
	defer fh.Close()

	httpClient := *u.opts.HTTPClient
	recorder := &metadataRecorder{base: httpClient.Transport}
	httpClient.Transport = recorder

	cfg := tus.DefaultConfig()
	cfg.ChunkSize = u.opts.ChunkSize
	cfg.Resume = u.opts.Store != nil
	cfg.Store = u.opts.Store
	cfg.HttpClient = &httpClient
	cfg.Header = make(http.Header)

	if token != "" {
		cfg.Header.Set("Authorization", token)
	}

	client, err := tus.NewClient(u.endpoint, cfg)
	if err != nil {
		return Uploaded{}, fmt.Errorf("upload: creating tus client: %w", err)
	}

	fingerprint := f.Fingerprint()
	meta := tus.Metadata{
		"filename": f.Name,
		"filetype": f.Type,
		"name":     f.Name,
		"type":     f.Type,
	}

	body := u.opts.Limiter.WrapReadSeeker(ctx, fh)

	uploader, err := client.CreateOrResumeUpload(tus.NewUpload(body, f.Size, meta, fingerprint))
	if err != nil {
		return Uploaded{}, fmt.Errorf("upload: creating tus upload for %s: %w", f.Name, err)
	}

	u.logger.Debug("uploading",
		slog.String("file", f.Name),
		slog.Int64("size", f.Size),
		slog.String("url", uploader.Url()),
		slog.Bool("authorized", token != ""),
	)

	// go-tus takes no context, so chunks are driven here and ctx is checked
	// between them.
	for uploader.Offset() < f.Size {
		if err := ctx.Err(); err != nil {
			return Uploaded{}, fmt.Errorf("upload: sending %s: %w", f.Name, err)
		}

		if err := uploader.UploadChunck(); err != nil {
			return Uploaded{}, fmt.Errorf("upload: sending %s: %w", f.Name, err)
		}
	}

	if u.opts.Store != nil {
		u.opts.Store.Delete(fingerprint)
	}

	done := Uploaded{URL: uploader.Url(), Name: f.Name}

	if name := DecodeMetadata(recorder.header())["filename"]; name != "" {
		done.Name = name
	}

	return done, nil
}

// metadataRecorder keeps the Upload-Metadata header of the latest PATCH
// response.
type metadataRecorder struct {
	base http.RoundTripper // nil means http.DefaultTransport

	mu       sync.Mutex
	metadata string
}

func (r *metadataRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	isPatch := req.Method == http.MethodPatch || req.Header.Get("X-HTTP-Method-Override") == http.MethodPatch

	if h := resp.Header.Get("Upload-Metadata"); isPatch && h != "" {
		r.mu.Lock()
		r.metadata = h
		r.mu.Unlock()
	}

	return resp, nil
}

func (r *metadataRecorder) header() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.metadata
}
