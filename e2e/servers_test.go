//go:build e2e

package e2e

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// privmsg is one PRIVMSG received by ircServer.
type privmsg struct {
	Target string
	Text   string
	Tags   map[string]string
}

// ircServer is a single-network IRC server good enough for one client at a
// time: CAP negotiation, registration, JOIN, EXTJWT and PRIVMSG.
type ircServer struct {
	ln     net.Listener
	token  string
	extjwt bool

	mu       sync.Mutex
	messages []privmsg
	extjwts  int
}

func newIRCServer(t *testing.T, extjwt bool) *ircServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     "e2e-bot",
		"iss":     "irc.e2e.test",
		"channel": "#e2e",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("e2e-secret"))
	require.NoError(t, err)

	s := &ircServer{ln: ln, token: token, extjwt: extjwt}
	t.Cleanup(func() { ln.Close() })

	go s.serve()

	return s
}

func (s *ircServer) URL() string { return "irc://" + s.ln.Addr().String() }

func (s *ircServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		go s.handle(conn)
	}
}

func (s *ircServer) handle(conn net.Conn) {
	defer conn.Close()

	send := func(format string, args ...any) {
		fmt.Fprintf(conn, format+"\r\n", args...)
	}

	nick := "*"
	userSeen, capDone := false, false
	welcomed := false

	r := bufio.NewReader(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		tags, rest := splitTags(strings.TrimRight(line, "\r\n"))

		msg, err := ircmsg.ParseLine(rest)
		if err != nil {
			continue
		}

		switch msg.Command {
		case "CAP":
			switch msg.Params[0] {
			case "LS":
				send(":irc.e2e.test CAP * LS :message-tags")
			case "REQ":
				send(":irc.e2e.test CAP * ACK :%s", msg.Params[len(msg.Params)-1])
			case "END":
				capDone = true
			}
		case "NICK":
			nick = msg.Params[0]
		case "USER":
			userSeen = true
		case "JOIN":
			send(":%s!bot@e2e JOIN %s", nick, msg.Params[0])
		case "EXTJWT":
			s.mu.Lock()
			s.extjwts++
			s.mu.Unlock()

			if s.extjwt {
				send(":irc.e2e.test EXTJWT * * %s", s.token)
			} else {
				send(":irc.e2e.test 421 %s EXTJWT :Unknown command", nick)
			}
		case "PRIVMSG":
			s.mu.Lock()
			s.messages = append(s.messages, privmsg{
				Target: msg.Params[0],
				Text:   msg.Params[1],
				Tags:   tags,
			})
			s.mu.Unlock()
		case "QUIT":
			return
		}

		if !welcomed && userSeen && capDone {
			welcomed = true

			isupport := "NETWORK=E2E CHANTYPES=#"
			if s.extjwt {
				isupport += " EXTJWT=1"
			}

			send(":irc.e2e.test 001 %s :Welcome", nick)
			send(":irc.e2e.test 005 %s %s :are supported by this server", nick, isupport)
			send(":irc.e2e.test 422 %s :MOTD File is missing", nick)
		}
	}
}

func (s *ircServer) received() []privmsg {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]privmsg(nil), s.messages...)
}

// tusServer is a tus 1.0 creation server that remembers the Authorization
// header of every upload.
type tusServer struct {
	*httptest.Server

	mu      sync.Mutex
	uploads map[string][]byte
	lengths map[string]int64
	auth    map[string]string
	next    int
}

func newTusServer(t *testing.T) *tusServer {
	t.Helper()

	ts := &tusServer{
		uploads: make(map[string][]byte),
		lengths: make(map[string]int64),
		auth:    make(map[string]string),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.Close)

	return ts
}

func (ts *tusServer) Endpoint() string { return ts.URL + "/files/" }

func (ts *tusServer) handle(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	w.Header().Set("Tus-Resumable", "1.0.0")
	id := strings.TrimPrefix(r.URL.Path, "/files/")

	switch r.Method {
	case http.MethodPost:
		length, err := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
		if err != nil {
			http.Error(w, "bad length", http.StatusBadRequest)
			return
		}

		ts.next++
		id = "f" + strconv.Itoa(ts.next)
		ts.lengths[id] = length
		ts.auth[id] = r.Header.Get("Authorization")

		w.Header().Set("Location", ts.URL+"/files/"+id)
		w.WriteHeader(http.StatusCreated)
	case http.MethodHead:
		data, ok := ts.uploads[id]
		if !ok && ts.lengths[id] == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Upload-Offset", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
	case http.MethodPatch:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		ts.uploads[id] = append(ts.uploads[id], body...)
		w.Header().Set("Upload-Offset", strconv.Itoa(len(ts.uploads[id])))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (ts *tusServer) upload(id string) ([]byte, string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	return ts.uploads[id], ts.auth[id]
}

// splitTags separates the tag prefix from a line. ircmsg rejects tag names
// with characters such as '_', which clients use in practice.
func splitTags(line string) (map[string]string, string) {
	tags := make(map[string]string)

	if !strings.HasPrefix(line, "@") {
		return tags, line
	}

	raw, rest, _ := strings.Cut(line[1:], " ")

	for _, kv := range strings.Split(raw, ";") {
		k, v, _ := strings.Cut(kv, "=")
		tags[k] = ircmsg.UnescapeTagValue(v)
	}

	return tags, rest
}
