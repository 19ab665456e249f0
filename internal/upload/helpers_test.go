package upload

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/ircup/internal/events"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// said is one PRIVMSG captured by fakeNetwork.
type said struct {
	target string
	text   string
	tags   map[string]string
}

// fakeNetwork stands in for an IRC connection. When token or unsupported is
// set, an EXTJWT request is answered on the bus synchronously.
type fakeNetwork struct {
	bus      *events.Bus
	isupport map[string]string

	mu          sync.Mutex
	token       string
	unsupported bool
	requests    int
	said        []said
	sayErr      error
}

func newFakeNetwork(bus *events.Bus, extjwt bool) *fakeNetwork {
	n := &fakeNetwork{bus: bus, isupport: map[string]string{"NETWORK": "Test"}}
	if extjwt {
		n.isupport["EXTJWT"] = "1"
	}

	return n
}

func (n *fakeNetwork) Raw(line string) error {
	n.mu.Lock()
	n.requests++
	token, unsupported := n.token, n.unsupported
	n.mu.Unlock()

	if line != "EXTJWT" {
		return nil
	}

	switch {
	case unsupported:
		n.bus.Emit(&events.Event{
			Name:    events.RawEvent("421"),
			Network: n,
			Command: "421",
			Params:  []string{"me", "EXTJWT", "Unknown command"},
		})
	case token != "":
		n.bus.Emit(&events.Event{
			Name:    events.RawEvent("EXTJWT"),
			Network: n,
			Command: "EXTJWT",
			Params:  []string{"*", "*", token},
		})
	}

	return nil
}

func (n *fakeNetwork) ISupport(name string) (string, bool) {
	v, ok := n.isupport[name]
	return v, ok
}

func (n *fakeNetwork) Say(target, text string, tags map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sayErr != nil {
		return n.sayErr
	}

	n.said = append(n.said, said{target: target, text: text, tags: tags})

	return nil
}

func (n *fakeNetwork) String() string { return "fake://test" }

func (n *fakeNetwork) requestCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.requests
}

func (n *fakeNetwork) messages() []said {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]said(nil), n.said...)
}

// tusUpload is one upload held by tusServer.
type tusUpload struct {
	length   int64
	data     []byte
	metadata map[string]string
	auth     string
}

// tusServer is a minimal tus 1.0 server: creation, HEAD offset and PATCH.
type tusServer struct {
	*httptest.Server

	mu      sync.Mutex
	uploads map[string]*tusUpload
	creates int
	patches int
	failAll bool

	// finishMetadata, when set, is returned as Upload-Metadata on the PATCH
	// that completes an upload.
	finishMetadata string
}

func newTusServer(t *testing.T) *tusServer {
	t.Helper()

	ts := &tusServer{uploads: make(map[string]*tusUpload)}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.Close)

	return ts
}

func (ts *tusServer) endpoint() string { return ts.URL + "/files/" }

func (ts *tusServer) handle(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	w.Header().Set("Tus-Resumable", "1.0.0")

	if ts.failAll {
		http.Error(w, "nope", http.StatusInternalServerError)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/files/")

	switch r.Method {
	case http.MethodPost:
		length, err := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
		if err != nil {
			http.Error(w, "bad length", http.StatusBadRequest)
			return
		}

		ts.creates++
		id = fmt.Sprintf("u%d", ts.creates)
		ts.uploads[id] = &tusUpload{
			length:   length,
			metadata: DecodeMetadata(r.Header.Get("Upload-Metadata")),
			auth:     r.Header.Get("Authorization"),
		}

		w.Header().Set("Location", ts.URL+"/files/"+id)
		w.WriteHeader(http.StatusCreated)
	case http.MethodHead:
		u, ok := ts.uploads[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Upload-Offset", strconv.Itoa(len(u.data)))
		w.Header().Set("Upload-Length", strconv.FormatInt(u.length, 10))
		w.WriteHeader(http.StatusOK)
	case http.MethodPatch:
		u, ok := ts.uploads[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if r.Header.Get("Upload-Offset") != strconv.Itoa(len(u.data)) {
			w.WriteHeader(http.StatusConflict)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		ts.patches++
		u.data = append(u.data, body...)
		w.Header().Set("Upload-Offset", strconv.Itoa(len(u.data)))

		if ts.finishMetadata != "" && int64(len(u.data)) == u.length {
			w.Header().Set("Upload-Metadata", ts.finishMetadata)
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (ts *tusServer) upload(id string) *tusUpload {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	return ts.uploads[id]
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}
