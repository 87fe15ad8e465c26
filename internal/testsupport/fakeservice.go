package testsupport

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// FakeServiceArg marks a test binary invocation that should act as the
// identification service instead of running tests.
const FakeServiceArg = "fake-identify-service"

// Markers recognized in request sources by the fake service.
const (
	MarkerUnparsable = "UNPARSABLE" // answer 501
	MarkerFail       = "FAIL"       // answer 500
	MarkerCrash      = "CRASH"      // exit without answering
	MarkerStall      = "STALL"      // hold the request until the client goes away
)

// FakeServiceRequest is one logged POST.
type FakeServiceRequest struct {
	Endpoint string            `json:"endpoint"`
	Source   string            `json:"source"`
	Map      *string           `json:"map"`
	Headers  map[string]string `json:"headers"`
	PID      int               `json:"pid"`
}

// FakeServiceCommand returns argv that starts the current test binary as a
// fake service. The package's TestMain must call MaybeRunFakeService.
// Requests are appended as JSON lines to logPath when it is non-empty.
func FakeServiceCommand(logPath string, extra ...string) []string {
	argv := []string{os.Args[0], FakeServiceArg}
	if logPath != "" {
		argv = append(argv, "-log="+logPath)
	}
	return append(argv, extra...)
}

// MaybeRunFakeService serves the fake identification API and exits when the
// process was started through FakeServiceCommand. Otherwise it returns.
func MaybeRunFakeService() {
	if len(os.Args) < 2 || os.Args[1] != FakeServiceArg {
		return
	}
	os.Exit(runFakeService(os.Args[2:]))
}

func runFakeService(args []string) int {
	fs := flag.NewFlagSet(FakeServiceArg, flag.ContinueOnError)
	logPath := fs.String("log", "", "request log")
	notReady := fs.Int("not-ready", 0, "number of /alive probes to fail first")
	exitAtStart := fs.Bool("exit-at-start", false, "exit immediately")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *exitAtStart {
		return 4
	}

	var (
		probes atomic.Int64
		logMu  sync.Mutex
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/alive", func(w http.ResponseWriter, _ *http.Request) {
		if probes.Add(1) <= int64(*notReady) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Source string  `json:"source"`
			Map    *string `json:"map"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if *logPath != "" {
			entry := FakeServiceRequest{Endpoint: r.URL.Path, Source: body.Source, Map: body.Map, Headers: map[string]string{}, PID: os.Getpid()}
			for name := range r.Header {
				if strings.HasPrefix(name, "X-") {
					entry.Headers[name] = r.Header.Get(name)
				}
			}
			line, _ := json.Marshal(entry)
			logMu.Lock()
			if f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				_, _ = f.Write(append(line, '\n'))
				f.Close()
			}
			logMu.Unlock()
		}
		switch {
		case strings.Contains(body.Source, MarkerCrash):
			os.Exit(3)
		case strings.Contains(body.Source, MarkerStall):
			select {
			case <-r.Context().Done():
			case <-time.After(time.Minute):
			}
		case strings.Contains(body.Source, MarkerUnparsable):
			http.Error(w, "Could not parse input", http.StatusNotImplemented)
		case strings.Contains(body.Source, MarkerFail):
			http.Error(w, "internal failure", http.StatusInternalServerError)
		default:
			hasMap := body.Map != nil
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"endpoint": r.URL.Path,
				"length":   len(body.Source),
				"has_map":  hasMap,
				"padding":  strings.Repeat("p", 64),
			})
		}
	})

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", os.Getenv("PORT")))
	if err != nil {
		fmt.Fprintln(os.Stderr, "fake service listen:", err)
		return 5
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return 6
	}
	return 0
}

// ReadFakeServiceLog returns the requests logged by fake services.
func ReadFakeServiceLog(t testing.TB, path string) []FakeServiceRequest {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read fake service log: %v", err)
	}
	var out []FakeServiceRequest
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry FakeServiceRequest
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode fake service log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

// FreePortRange returns a base port such that base..base+n-1 were free a
// moment ago.
func FreePortRange(t testing.TB, n int) int {
	t.Helper()

	for attempt := 0; attempt < 50; attempt++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		base := l.Addr().(*net.TCPAddr).Port
		l.Close()
		if base+n > 65535 {
			continue
		}
		ok := true
		var held []net.Listener
		for i := 0; i < n; i++ {
			li, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", base+i))
			if err != nil {
				ok = false
				break
			}
			held = append(held, li)
		}
		for _, li := range held {
			li.Close()
		}
		if ok {
			return base
		}
	}
	t.Fatalf("no free range of %d ports found", n)
	return 0
}
