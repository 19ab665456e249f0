package upload

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tonimelisma/ircup/internal/events"
)

// EventUploaded is published on the bus after every shared upload. Params
// are the share URL, file name, size in bytes and MIME type.
const EventUploaded = "fileuploader.uploaded"

// Client-only message tags describing the shared file.
const (
	TagFileSize = "+kiwiirc.com/fileuploader/file_size"
	TagFileType = "+kiwiirc.com/fileuploader/file_type"
)

// URLPlaceholder is replaced with the share URL in the upload message.
const URLPlaceholder = "%URL%"

// Sharer announces completed uploads.
type Sharer struct {
	bus     *events.Bus
	message func() string
	logger  *slog.Logger
}

// NewSharer creates a Sharer. message is consulted on every share so a
// reloaded config takes effect immediately.
func NewSharer(bus *events.Bus, message func() string, logger *slog.Logger) *Sharer {
	return &Sharer{bus: bus, message: message, logger: logger}
}

// Share posts shareURL to f's target buffer and publishes EventUploaded.
func (s *Sharer) Share(f *File, shareURL string) error {
	text := strings.ReplaceAll(s.message(), URLPlaceholder, shareURL)
	tags := map[string]string{
		TagFileSize: strconv.FormatInt(f.Size, 10),
		TagFileType: f.Type,
	}

	s.bus.Emit(&events.Event{
		Name:    EventUploaded,
		Network: f.Target.Network,
		Params:  []string{shareURL, f.Name, strconv.FormatInt(f.Size, 10), f.Type},
	})

	if f.Target.Buffer == "" {
		return nil
	}

	if err := f.Target.Network.Say(f.Target.Buffer, text, tags); err != nil {
		return fmt.Errorf("upload: sharing %s to %s: %w", f.Name, f.Target.Buffer, err)
	}

	s.logger.Info("shared upload",
		slog.String("file", f.Name),
		slog.String("target", f.Target.Buffer),
		slog.String("url", shareURL),
	)

	return nil
}
