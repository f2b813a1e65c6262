// Package serialmux multiplexes the sensor hub serial link. The hub streams
// ADC samples and input edges as text lines; the mux parses them for the
// device and fans the raw lines out to any number of subscribers, such as the
// debug tail.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!doctype html>
<html><head><title>pulsemon hub</title></head>
<body>
<h1>Sensor hub</h1>
<form method="post" action="send-command-api">
<input name="command" placeholder="STREAM ON" autofocus>
<button type="submit">Send</button>
</form>
<p>Live lines: <a href="tail">tail</a></p>
</body></html>
`))

// SerialMux reads hub lines from a single port, dispatches parsed events to a
// Handler and copies every line to subscribers.
type SerialMux[T SerialPorter] struct {
	port         T
	handler      Handler
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool

	lines   atomic.Uint64
	invalid atomic.Uint64
}

// SerialMuxInterface is implemented by the real hub link and by DisabledSerialMux.
type SerialMuxInterface interface {
	// Subscribe creates a channel receiving raw hub lines. The ID is used to
	// unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)
	// SendCommand writes one command line to the hub.
	SendCommand(string) error
	// Monitor reads lines until the context is done or the port fails.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the port.
	Close() error
	// Initialize configures the hub's sample rate and starts streaming.
	Initialize(rateHz int) error
	// AttachAdminRoutes attaches the send-command and tail endpoints under
	// /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux over port. handler may be nil when only
// the raw lines are of interest.
func NewSerialMux[T SerialPorter](port T, handler Handler) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		handler:     handler,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing.Load() {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize sets the hub sample rate and enables the sample and edge stream.
func (s *SerialMux[T]) Initialize(rateHz int) error {
	for _, command := range []string{
		fmt.Sprintf("RATE %d", rateHz),
		"EDGES ON",  // report button and encoder edges
		"STREAM ON", // start streaming ADC samples
	} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Stats returns the number of lines read and how many failed to parse.
func (s *SerialMux[T]) Stats() (lines, invalid uint64) {
	return s.lines.Load(), s.invalid.Load()
}

// Monitor reads lines from the port, hands parsed events to the handler and
// copies each line to subscribers without blocking on slow readers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan []byte)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs here so the loop below can still observe
	// context cancellation
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			line := bytes.Clone(scan.Bytes())
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
				}
				return nil
			}
			if s.closing.Load() {
				return nil
			}
			s.lines.Add(1)

			ev, err := ParseLine(line)
			if err != nil {
				s.invalid.Add(1)
			} else if s.handler != nil {
				s.handler.HandleEvent(ev)
			}

			s.broadcast(string(line))
		}
	}
}

func (s *SerialMux[T]) broadcast(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// slow subscriber, drop rather than stall the sample path
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closing.Store(true)

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

// attachAdminRoutes registers the debug endpoints shared by every
// SerialMuxInterface implementation.
func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command to the sensor hub", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to sensor hub", command)
	})

	// server-sent events carrying raw hub lines
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
