// Package testing provides an in-process management API peer for tests.
// It answers like a VIIPER server, including the optional password handshake.
package testing

import (
	"bufio"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	apitypes "github.com/Alia5/padproxy/apitypes"
	"github.com/Alia5/padproxy/device/switchpro"
	"github.com/Alia5/padproxy/internal/auth"
)

// Peer speaks the management protocol on a loopback listener.
// Requests are answered with one JSON line and the connection is closed,
// except stream connections which stay open and deliver frames on Frames.
type Peer struct {
	Addr string
	// Frames receives every FrameSize-byte frame written to a device stream.
	Frames    chan []byte
	FrameSize int

	ln      net.Listener
	mu      sync.Mutex
	buses   map[uint32][]string
	streams map[string]net.Conn
	nextDev int
	reqs    []string
	refuse  map[uint32]bool
	types   map[string]bool
	key     []byte
}

// NewPeer starts a peer with the given buses already present.
// It is shut down by t.Cleanup.
func NewPeer(t *testing.T, buses ...uint32) *Peer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &Peer{
		Addr:      ln.Addr().String(),
		Frames:    make(chan []byte, 1024),
		FrameSize: switchpro.InputStateSize,
		ln:        ln,
		buses:     map[uint32][]string{},
		streams:   map[string]net.Conn{},
		refuse:    map[uint32]bool{},
	}
	for _, b := range buses {
		p.buses[b] = nil
	}
	go p.serve()
	t.Cleanup(p.Close)
	return p
}

// NewSecurePeer is like NewPeer but requires clients to authenticate with password.
func NewSecurePeer(t *testing.T, password string, buses ...uint32) *Peer {
	t.Helper()
	key, err := auth.DeriveKey(password)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	p := NewPeer(t, buses...)
	p.mu.Lock()
	p.key = key
	p.mu.Unlock()
	return p
}

// RefuseBus makes bus/create fail for the given ids.
func (p *Peer) RefuseBus(ids ...uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.refuse[id] = true
	}
}

// OnlyTypes limits bus/{id}/add to the given device types, the way a server
// without a handler for a type rejects it. By default every type is accepted.
func (p *Peer) OnlyTypes(types ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = map[string]bool{}
	for _, t := range types {
		p.types[t] = true
	}
}

// Requests returns every request line received, in order.
func (p *Peer) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.reqs)
}

// Buses returns the current bus ids, sorted.
func (p *Peer) Buses() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint32, 0, len(p.buses))
	for id := range p.buses {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Devices returns the device ids on a bus.
func (p *Peer) Devices(bus uint32) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.buses[bus])
}

// DropStreams closes every open stream connection, as if the peer went away.
func (p *Peer) DropStreams() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, c := range p.streams {
		_ = c.Close()
		delete(p.streams, k)
	}
}

// Close stops the listener and drops all streams.
func (p *Peer) Close() {
	_ = p.ln.Close()
	p.DropStreams()
}

func (p *Peer) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		go p.handle(conn)
	}
}

func (p *Peer) handle(conn net.Conn) {
	p.mu.Lock()
	key := p.key
	p.mu.Unlock()
	if key != nil {
		secure, err := acceptHandshake(conn, key)
		if err != nil {
			_ = conn.Close()
			return
		}
		conn = secure
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString(0)
	if err != nil {
		_ = conn.Close()
		return
	}
	line = strings.TrimSuffix(line, "\x00")
	path, payload, _ := strings.Cut(line, " ")

	p.mu.Lock()
	p.reqs = append(p.reqs, line)
	p.mu.Unlock()

	if key, ok := p.streamKey(path); ok {
		p.stream(key, conn, r)
		return
	}
	defer conn.Close()
	resp := p.dispatch(path, payload)
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(apitypes.ApiError{Status: 500, Title: "Internal Server Error", Detail: err.Error()})
	}
	_, _ = conn.Write(append(b, '\n'))
}

func (p *Peer) dispatch(path, payload string) any {
	p.mu.Lock()
	defer p.mu.Unlock()

	parts := strings.Split(path, "/")
	switch {
	case path == "ping":
		return apitypes.PingResponse{Server: "peer", Version: "test"}
	case path == "bus/list":
		out := apitypes.BusListResponse{Buses: []uint32{}}
		for id := range p.buses {
			out.Buses = append(out.Buses, id)
		}
		slices.Sort(out.Buses)
		return out
	case path == "bus/create":
		id, err := parseBus(payload)
		if err != nil {
			return badRequest(err.Error())
		}
		if _, taken := p.buses[id]; taken || p.refuse[id] {
			return apitypes.ApiError{Status: 409, Title: "Conflict", Detail: fmt.Sprintf("bus %d exists", id)}
		}
		p.buses[id] = nil
		return apitypes.BusCreateResponse{BusID: id}
	case path == "bus/remove":
		id, err := parseBus(payload)
		if err != nil {
			return badRequest(err.Error())
		}
		if _, ok := p.buses[id]; !ok {
			return notFound(fmt.Sprintf("bus %d not found", id))
		}
		for _, dev := range p.buses[id] {
			p.dropStream(id, dev)
		}
		delete(p.buses, id)
		return apitypes.BusRemoveResponse{BusID: id}
	case len(parts) == 3 && parts[0] == "bus":
		id, err := parseBus(parts[1])
		if err != nil {
			return badRequest(err.Error())
		}
		devs, ok := p.buses[id]
		if !ok {
			return notFound(fmt.Sprintf("bus %d not found", id))
		}
		switch parts[2] {
		case "add":
			var req apitypes.DeviceCreateRequest
			if err := json.Unmarshal([]byte(payload), &req); err != nil || req.Type == nil || *req.Type == "" {
				return badRequest("invalid device request")
			}
			if p.types != nil && !p.types[*req.Type] {
				return badRequest(fmt.Sprintf("unknown device type: %s", *req.Type))
			}
			p.nextDev++
			dev := strconv.Itoa(p.nextDev)
			p.buses[id] = append(devs, dev)
			vid, pid := uint16(switchpro.VendorID), uint16(switchpro.ProductProCon)
			if req.IdVendor != nil {
				vid = *req.IdVendor
			}
			if req.IdProduct != nil {
				pid = *req.IdProduct
			}
			return apitypes.Device{BusID: id, DevId: dev, Vid: fmt.Sprintf("0x%04x", vid), Pid: fmt.Sprintf("0x%04x", pid), Type: *req.Type}
		case "remove":
			i := slices.Index(devs, payload)
			if i < 0 {
				return notFound(fmt.Sprintf("device %s not found", payload))
			}
			p.buses[id] = slices.Delete(devs, i, i+1)
			p.dropStream(id, payload)
			return apitypes.DeviceRemoveResponse{BusID: id, DevId: payload}
		case "list":
			out := apitypes.DevicesListResponse{Devices: []apitypes.Device{}}
			for _, d := range devs {
				out.Devices = append(out.Devices, apitypes.Device{BusID: id, DevId: d})
			}
			return out
		}
	}
	return notFound("unknown path " + path)
}

// streamKey reports whether path names an existing device.
func (p *Peer) streamKey(path string) (string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] != "bus" {
		return "", false
	}
	id, err := parseBus(parts[1])
	if err != nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.buses[id], parts[2]) {
		return "", false
	}
	return path, true
}

func (p *Peer) stream(key string, conn net.Conn, r *bufio.Reader) {
	p.mu.Lock()
	p.streams[key] = conn
	p.mu.Unlock()

	for {
		buf := make([]byte, p.FrameSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			_ = conn.Close()
			return
		}
		select {
		case p.Frames <- buf:
		default:
		}
	}
}

// dropStream must be called with p.mu held.
func (p *Peer) dropStream(bus uint32, dev string) {
	key := fmt.Sprintf("bus/%d/%s", bus, dev)
	if c, ok := p.streams[key]; ok {
		_ = c.Close()
		delete(p.streams, key)
	}
}

// acceptHandshake is the server side of auth.Handshake.
func acceptHandshake(conn net.Conn, key []byte) (net.Conn, error) {
	buf := make([]byte, len(auth.HandshakeMagic)+auth.NonceSize+sha256.Size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	if string(buf[:len(auth.HandshakeMagic)]) != auth.HandshakeMagic {
		return nil, errors.New("bad handshake magic")
	}
	clientNonce := buf[len(auth.HandshakeMagic) : len(auth.HandshakeMagic)+auth.NonceSize]
	if !hmac.Equal(buf[len(auth.HandshakeMagic)+auth.NonceSize:], auth.ClientAuth(key, clientNonce)) {
		b, _ := json.Marshal(apitypes.ApiError{Status: 401, Title: "Unauthorized", Detail: "invalid password"})
		_, _ = conn.Write(append(b, '\n'))
		return nil, errors.New("invalid password")
	}

	serverNonce := make([]byte, auth.NonceSize)
	if _, err := rand.Read(serverNonce); err != nil {
		return nil, err
	}
	if _, err := conn.Write(append([]byte("OK\x00"), serverNonce...)); err != nil {
		return nil, err
	}
	return auth.WrapConn(conn, auth.DeriveSessionKey(key, serverNonce, clientNonce))
}

func parseBus(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.New("invalid bus id")
	}
	return uint32(v), nil
}

func badRequest(detail string) apitypes.ApiError {
	return apitypes.ApiError{Status: 400, Title: "Bad Request", Detail: detail}
}

func notFound(detail string) apitypes.ApiError {
	return apitypes.ApiError{Status: 404, Title: "Not Found", Detail: detail}
}
