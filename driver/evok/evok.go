// package evok implements the Physical hardware backend: it talks to
// an external EVOK-like gateway over HTTP (digital input reads) and a
// JSON websocket (relay writes), as spec §4.A and §6 describe.
//
// Grounded on original_source/.../hardware/io.py's UnipiHardware
// adapter and UNIPI Simul/Web/evok_server.py's REST/WS message shapes,
// reworked from a Python ABC into a small struct satisfying
// radport.dev/hwport.Port, the way the teacher's driver/ backends each
// implement one capability interface per file.
package evok

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"radport.dev/hwport"
)

// Backend is the Physical hwport.Port. Every method is tolerant of
// transport failure: reads return 0, writes are dropped, and nothing
// ever blocks past hwport.Timeout (spec §7).
type Backend struct {
	httpBase string
	wsURL    string
	client   *http.Client
	inverted map[int]bool

	mu   sync.Mutex
	conn *websocket.Conn

	loggedReadErr  bool
	loggedWriteErr bool
}

// Options configures a Backend.
type Options struct {
	// HTTPBase is the base URL for GET requests, e.g. "http://host:8080".
	HTTPBase string
	// WSURL is the websocket endpoint, e.g. "ws://host:8080/ws".
	WSURL string
	// Inverted lists digital line indices whose polarity is inverted
	// between the gateway's wire value and the core's logical value
	// (spec §4.A: "per-index polarity inversion configured outside
	// the core").
	Inverted []int
}

// New returns a Backend. No network I/O happens until the first
// ReadDigital/WriteDigital call; the websocket connection is opened
// lazily and reopened on the next write after any failure.
func New(opts Options) *Backend {
	inv := make(map[int]bool, len(opts.Inverted))
	for _, idx := range opts.Inverted {
		inv[idx] = true
	}
	return &Backend{
		httpBase: opts.HTTPBase,
		wsURL:    opts.WSURL,
		client:   &http.Client{Timeout: hwport.Timeout},
		inverted: inv,
	}
}

type restValue struct {
	Value int `json:"value"`
}

// ReadDigital issues GET {HTTPBase}/rest/input/{idx}. Any failure,
// including a timeout or malformed body, yields 0.
func (b *Backend) ReadDigital(idx int) int {
	url := fmt.Sprintf("%s/rest/input/%d", b.httpBase, idx)
	resp, err := b.client.Get(url)
	if err != nil {
		b.logReadErr(err)
		return 0
	}
	defer resp.Body.Close()
	var v restValue
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		b.logReadErr(err)
		return 0
	}
	raw := v.Value
	if raw != 0 {
		raw = 1
	}
	if b.inverted[idx] {
		raw ^= 1
	}
	return raw
}

// ReadCell reads the logical cell line for c (spec §4.A mapping:
// cell 1 -> line 3, cell 2 -> line 4).
func (b *Backend) ReadCell(c hwport.Cell) int {
	if c == hwport.Cell1 {
		return b.ReadDigital(hwport.LineCell1)
	}
	return b.ReadDigital(hwport.LineCell2)
}

type restCounter struct {
	Value uint64 `json:"value"`
}

// ReadPulses issues GET {HTTPBase}/rest/counter/{ch}, the EVOK gateway's
// monotonic pulse-counter register for a detector channel (spec §4.C:
// "a real GPIO ISR" is the physical source; here it is read through the
// gateway rather than a local bus, consistent with hwport's network
// abstraction). Any failure yields 0, the same as a digital read.
func (b *Backend) ReadPulses(ch int) uint64 {
	url := fmt.Sprintf("%s/rest/counter/%d", b.httpBase, ch)
	resp, err := b.client.Get(url)
	if err != nil {
		b.logReadErr(err)
		return 0
	}
	defer resp.Body.Close()
	var v restCounter
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		b.logReadErr(err)
		return 0
	}
	return v.Value
}

// WriteDigital sends a relay "set" command over the websocket. Any
// connect or write failure is dropped silently after a one-time log;
// the core must never block or fail because a relay write didn't land.
func (b *Backend) WriteDigital(idx int, value int) {
	if value != 0 {
		value = 1
	}
	if b.inverted[idx] {
		value ^= 1
	}
	msg := struct {
		Cmd     string `json:"cmd"`
		Dev     string `json:"dev"`
		Circuit string `json:"circuit"`
		Value   string `json:"value"`
	}{
		Cmd:     "set",
		Dev:     "relay",
		Circuit: strconv.Itoa(idx),
		Value:   strconv.Itoa(value),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		if err := b.dialLocked(); err != nil {
			b.logWriteErr(err)
			return
		}
	}
	b.conn.SetWriteDeadline(time.Now().Add(hwport.Timeout))
	if err := b.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		b.logWriteErr(err)
		b.conn.Close()
		b.conn = nil
	}
}

func (b *Backend) dialLocked() error {
	d := websocket.Dialer{HandshakeTimeout: hwport.Timeout}
	conn, _, err := d.Dial(b.wsURL, nil)
	if err != nil {
		return err
	}
	b.conn = conn
	return nil
}

// Close releases the websocket connection, if any.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *Backend) logReadErr(err error) {
	if b.loggedReadErr {
		return
	}
	b.loggedReadErr = true
	log.Printf("evok: digital read failed, substituting 0: %v", err)
}

func (b *Backend) logWriteErr(err error) {
	if b.loggedWriteErr {
		return
	}
	b.loggedWriteErr = true
	log.Printf("evok: relay write dropped: %v", err)
}

var _ hwport.Port = (*Backend)(nil)
