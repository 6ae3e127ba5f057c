// Package callback implements the loopback HTTP listener that captures
// the OAuth authorization code redirected back from the provider.
package callback

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle phase of the current flow.
type State int

const (
	StateIdle State = iota
	StateListening
	StateFulfilled
	StateTimedOut
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateFulfilled:
		return "fulfilled"
	case StateTimedOut:
		return "timed out"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// ErrFlowInProgress is returned by Start while a previous flow is still
// waiting for its redirect. At most one flow may be pending.
var ErrFlowInProgress = errors.New("an authorization flow is already in progress")

// ErrTimeout is reported when no qualifying redirect arrives within the
// bounded wait. The port is released so a new flow can start.
var ErrTimeout = errors.New("timed out waiting for the authorization redirect")

// Result carries the values extracted from a qualifying redirect.
type Result struct {
	Code  string
	State string
}

// successPage is served to the browser on a qualifying redirect. The
// script closes the tab shortly after; the listener stays bound for a
// grace window so the script has time to run.
const successPage = `<html>
  <body>
    <h1>Authentication successful!</h1>
    <p>You can close this window and return to the application.</p>
    <script>
      window.onload = function () {
        setTimeout(() => window.close(), 5000);
      };
    </script>
  </body>
</html>
`

// Listener is a reusable one-shot loopback redirect target. Each Start
// binds a fresh OS-assigned port and runs one flow through the state
// machine Idle -> Listening -> Fulfilled|TimedOut -> Closed. The code is
// delivered at most once per flow through a single-slot channel.
type Listener struct {
	timeout time.Duration
	grace   time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	gen      int
	state    State
	port     int
	srv      *http.Server
	timer    *time.Timer
	resultCh chan Result
	errCh    chan error
}

// New creates a listener. timeout bounds the wait for the redirect;
// grace is how long the listener stays bound after serving the success
// page.
func New(timeout, grace time.Duration, log zerolog.Logger) *Listener {
	return &Listener{
		timeout: timeout,
		grace:   grace,
		log:     log,
	}
}

// Start binds a loopback listener on an OS-chosen port and begins a new
// flow. It fails with ErrFlowInProgress while a previous flow is still
// listening.
func (l *Listener) Start() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateListening {
		return 0, ErrFlowInProgress
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}

	l.gen++
	gen := l.gen
	l.port = ln.Addr().(*net.TCPAddr).Port
	l.resultCh = make(chan Result, 1)
	l.errCh = make(chan error, 1)
	l.srv = &http.Server{Handler: l.handler(gen)}
	l.state = StateListening
	l.timer = time.AfterFunc(l.timeout, func() { l.timeoutFlow(gen) })

	srv := l.srv
	go func() { _ = srv.Serve(ln) }()

	l.log.Info().Int("port", l.port).Msg("auth listener running")
	return l.port, nil
}

// handler answers the provider redirect for one flow generation. Any
// request without a code, or to another path, gets a 404 with an empty
// body and does not affect the flow state.
func (l *Listener) handler(gen int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if r.URL.Path != "/" || code == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		l.mu.Lock()
		if l.gen != gen || l.state != StateListening {
			l.mu.Unlock()
			w.WriteHeader(http.StatusNotFound)
			return
		}
		l.state = StateFulfilled
		l.timer.Stop()
		srv := l.srv
		l.resultCh <- Result{Code: code, State: r.URL.Query().Get("state")}
		l.mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, successPage)

		// Keep the port bound until the page's auto-close script has run.
		// Shutdown happens off the request path so the response is not
		// blocked on it.
		time.AfterFunc(l.grace, func() { l.closeFlow(gen, srv) })
		l.log.Info().Msg("authorization code received")
	})
}

// WaitForCode blocks until the current flow delivers a code, times out,
// or ctx is canceled. Cancellation tears the flow down.
func (l *Listener) WaitForCode(ctx context.Context) (Result, error) {
	l.mu.Lock()
	gen := l.gen
	resultCh, errCh := l.resultCh, l.errCh
	l.mu.Unlock()

	if resultCh == nil {
		return Result{}, errors.New("no flow started")
	}

	select {
	case res := <-resultCh:
		return res, nil
	case err := <-errCh:
		return Result{}, err
	case <-ctx.Done():
		l.cancelFlow(gen)
		return Result{}, ctx.Err()
	}
}

// State returns the current flow state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Port returns the port bound by the most recent Start.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// timeoutFlow expires a flow that received no qualifying redirect,
// releasing the port immediately.
func (l *Listener) timeoutFlow(gen int) {
	l.mu.Lock()
	if l.gen != gen || l.state != StateListening {
		l.mu.Unlock()
		return
	}
	l.state = StateTimedOut
	srv := l.srv
	l.errCh <- ErrTimeout
	l.mu.Unlock()

	l.log.Warn().Msg("auth listener timed out")
	_ = srv.Close()

	l.mu.Lock()
	if l.gen == gen {
		l.state = StateClosed
	}
	l.mu.Unlock()
}

// cancelFlow tears down a still-listening flow, e.g. when the waiter's
// context is canceled.
func (l *Listener) cancelFlow(gen int) {
	l.mu.Lock()
	if l.gen != gen || l.state != StateListening {
		l.mu.Unlock()
		return
	}
	l.state = StateClosed
	l.timer.Stop()
	srv := l.srv
	l.mu.Unlock()

	_ = srv.Close()
}

// closeFlow shuts the server down after the post-fulfillment grace
// window.
func (l *Listener) closeFlow(gen int, srv *http.Server) {
	_ = srv.Shutdown(context.Background())

	l.mu.Lock()
	if l.gen == gen && l.state == StateFulfilled {
		l.state = StateClosed
	}
	l.mu.Unlock()

	l.log.Debug().Msg("auth listener closed")
}

// Close tears down whatever flow is active. Used at process shutdown.
func (l *Listener) Close() {
	l.mu.Lock()
	srv := l.srv
	if l.timer != nil {
		l.timer.Stop()
	}
	if l.state == StateListening || l.state == StateFulfilled {
		l.state = StateClosed
	}
	l.mu.Unlock()

	if srv != nil {
		_ = srv.Close()
	}
}
