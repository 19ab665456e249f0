package upload

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/ircup/internal/uploadstore"
)

// FileUploader sends one file. *Uploader satisfies it.
type FileUploader interface {
	Upload(ctx context.Context, f *File, token string) (Uploaded, error)
}

// History records completed uploads. *uploadstore.Store satisfies it.
type History interface {
	Record(ctx context.Context, e *uploadstore.Entry) error
}

// Outcome is the result of one file's trip through the pipeline. Err is set
// when the file was rejected, failed to upload or failed to share.
type Outcome struct {
	File       *File
	UploadURL  string
	ShareURL   string
	Authorized bool
	Err        error
}

// Pipeline runs check -> acquire tokens -> upload -> share.
type Pipeline struct {
	checker  *Checker
	auth     *Authorizer
	uploader FileUploader
	sharer   *Sharer
	history  History // may be nil
	parallel int
	logger   *slog.Logger
}

// NewPipeline wires the pipeline stages together. parallel bounds the
// number of concurrent uploads.
func NewPipeline(
	checker *Checker, auth *Authorizer, uploader FileUploader, sharer *Sharer,
	history History, parallel int, logger *slog.Logger,
) *Pipeline {
	if parallel < 1 {
		parallel = 1
	}

	return &Pipeline{
		checker:  checker,
		auth:     auth,
		uploader: uploader,
		sharer:   sharer,
		history:  history,
		parallel: parallel,
		logger:   logger,
	}
}

// Run processes files and returns one Outcome per file, in input order.
// Per-file failures are reported in the outcomes; the returned error is
// non-nil only when ctx was canceled.
func (p *Pipeline) Run(ctx context.Context, files []*File) ([]Outcome, error) {
	outcomes := make([]Outcome, len(files))

	var accepted []*File

	for i, f := range files {
		outcomes[i].File = f

		if err := p.checker.Check(f); err != nil {
			p.logger.Warn("file rejected",
				slog.String("file", f.Name),
				slog.String("error", err.Error()),
			)

			outcomes[i].Err = err

			continue
		}

		accepted = append(accepted, f)
	}

	if len(accepted) == 0 {
		return outcomes, nil
	}

	tokens, err := p.auth.Acquire(ctx, accepted)
	if err != nil {
		return outcomes, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)

	for i := range outcomes {
		o := &outcomes[i]
		if o.Err != nil {
			continue
		}

		token, authorized := tokens[o.File]
		o.Authorized = authorized

		g.Go(func() error {
			p.process(gctx, o, token)
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, fmt.Errorf("upload: pipeline interrupted: %w", err)
	}

	return outcomes, nil
}

func (p *Pipeline) process(ctx context.Context, o *Outcome, token string) {
	done, err := p.uploader.Upload(ctx, o.File, token)
	if err != nil {
		p.logger.Error("upload failed",
			slog.String("file", o.File.Name),
			slog.String("error", err.Error()),
		)

		o.Err = err

		return
	}

	o.UploadURL = done.URL
	o.ShareURL = ShareURL(done.URL, done.Name)

	if err := p.sharer.Share(o.File, o.ShareURL); err != nil {
		p.logger.Warn("share failed",
			slog.String("file", o.File.Name),
			slog.String("error", err.Error()),
		)

		o.Err = err
	}

	if p.history == nil {
		return
	}

	entry := &uploadstore.Entry{
		Name:       o.File.Name,
		Path:       o.File.Path,
		Size:       o.File.Size,
		MIMEType:   o.File.Type,
		UploadURL:  o.UploadURL,
		ShareURL:   o.ShareURL,
		Network:    fmt.Sprint(o.File.Target.Network),
		Target:     o.File.Target.Buffer,
		Authorized: o.Authorized,
	}

	if err := p.history.Record(ctx, entry); err != nil {
		p.logger.Warn("recording upload history failed",
			slog.String("file", o.File.Name),
			slog.String("error", err.Error()),
		)
	}
}
