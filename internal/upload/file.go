// Package upload moves local files to a tus server and announces them on
// IRC. Before any bytes are sent, each file's network is asked for an
// EXTJWT token which the tus server receives as the Authorization header.
package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/ircup/internal/extjwt"
)

// sniffLen is how much of a file http.DetectContentType looks at.
const sniffLen = 512

// Network is an IRC connection files are shared on. *ircconn.Conn
// satisfies it.
type Network interface {
	extjwt.Network
	ISupport(name string) (string, bool)
	Say(target, text string, tags map[string]string) error
}

// Target is where a completed upload is announced: a channel or nick
// (Buffer) on a network.
type Target struct {
	Network Network
	Buffer  string
}

// File is one local file queued for upload.
type File struct {
	Path    string
	Name    string // NFC-normalised base name sent as tus metadata
	Size    int64
	Type    string // MIME type
	ModTime time.Time
	Target  Target
}

// NewFile stats path and detects its MIME type, first by extension and then
// by content sniffing.
func NewFile(path string, target Target) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("upload: stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("upload: %s is not a regular file", path)
	}

	mimeType, err := detectType(path)
	if err != nil {
		return nil, err
	}

	return &File{
		Path:    path,
		Name:    norm.NFC.String(filepath.Base(path)),
		Size:    info.Size(),
		Type:    mimeType,
		ModTime: info.ModTime(),
		Target:  target,
	}, nil
}

func detectType(path string) (string, error) {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("upload: opening %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, sniffLen)

	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("upload: reading %s: %w", path, err)
	}

	return http.DetectContentType(buf[:n]), nil
}

// Fingerprint identifies a file version for tus resumption. A changed size
// or modification time starts a fresh upload.
func (f *File) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(f.Path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(f.Size, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(f.ModTime.UnixNano(), 10)))

	return hex.EncodeToString(h.Sum(nil))
}

// baseType strips MIME parameters ("text/plain; charset=utf-8").
func baseType(mimeType string) string {
	t, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(strings.ToLower(t))
}
