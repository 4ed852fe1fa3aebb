// Package apiclient talks to a VIIPER-compatible server: it manages buses and devices
// over the management API and streams controller state to a device.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	apitypes "github.com/Alia5/padproxy/apitypes"
	"github.com/Alia5/padproxy/device"
)

// Client provides a high-level interface to the management API, handling request
// formatting, response parsing, and error handling.
type Client struct{ transport *Transport }

// New constructs a client for the API server at addr (host:port).
func New(addr string) *Client { return &Client{transport: NewTransport(addr)} }

// NewWithConfig constructs a client with custom timeouts and an optional password.
func NewWithConfig(addr string, cfg *Config) *Client {
	return &Client{transport: NewTransportWithConfig(addr, cfg)}
}

// WithTransport constructs a Client using a custom Transport, mostly for tests.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// PingCtx returns the version and identity of the server.
func (c *Client) PingCtx(ctx context.Context) (*apitypes.PingResponse, error) {
	return call[apitypes.PingResponse](ctx, c, "ping", nil, nil)
}

// BusListCtx retrieves all active bus numbers.
func (c *Client) BusListCtx(ctx context.Context) (*apitypes.BusListResponse, error) {
	return call[apitypes.BusListResponse](ctx, c, "bus/list", nil, nil)
}

// BusCreateCtx creates a bus with the given number; it fails if the number is taken.
func (c *Client) BusCreateCtx(ctx context.Context, busID uint32) (*apitypes.BusCreateResponse, error) {
	return call[apitypes.BusCreateResponse](ctx, c, "bus/create", strconv.FormatUint(uint64(busID), 10), nil)
}

// BusRemoveCtx removes a bus and every device attached to it.
func (c *Client) BusRemoveCtx(ctx context.Context, busID uint32) (*apitypes.BusRemoveResponse, error) {
	return call[apitypes.BusRemoveResponse](ctx, c, "bus/remove", strconv.FormatUint(uint64(busID), 10), nil)
}

// DevicesListCtx lists the devices attached to a bus.
func (c *Client) DevicesListCtx(ctx context.Context, busID uint32) (*apitypes.DevicesListResponse, error) {
	return call[apitypes.DevicesListResponse](ctx, c, "bus/{id}/list", nil, busParams(busID))
}

// DeviceAddCtx adds a device of devType (e.g. "switchpro") to a bus.
func (c *Client) DeviceAddCtx(ctx context.Context, busID uint32, devType string, o *device.CreateOptions) (*apitypes.Device, error) {
	if o == nil {
		o = &device.CreateOptions{}
	}
	req := apitypes.DeviceCreateRequest{
		Type:      &devType,
		IdVendor:  o.IdVendor,
		IdProduct: o.IdProduct,
		SubType:   o.SubType,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal device create request: %w", err)
	}
	return call[apitypes.Device](ctx, c, "bus/{id}/add", string(payload), busParams(busID))
}

// DeviceRemoveCtx removes device devID from a bus; open streams to it are closed by the server.
func (c *Client) DeviceRemoveCtx(ctx context.Context, busID uint32, devID string) (*apitypes.DeviceRemoveResponse, error) {
	return call[apitypes.DeviceRemoveResponse](ctx, c, "bus/{id}/remove", devID, busParams(busID))
}

func (c *Client) Ping() (*apitypes.PingResponse, error) { return c.PingCtx(context.Background()) }

func (c *Client) BusList() (*apitypes.BusListResponse, error) {
	return c.BusListCtx(context.Background())
}

func (c *Client) BusCreate(busID uint32) (*apitypes.BusCreateResponse, error) {
	return c.BusCreateCtx(context.Background(), busID)
}

func (c *Client) BusRemove(busID uint32) (*apitypes.BusRemoveResponse, error) {
	return c.BusRemoveCtx(context.Background(), busID)
}

func (c *Client) DevicesList(busID uint32) (*apitypes.DevicesListResponse, error) {
	return c.DevicesListCtx(context.Background(), busID)
}

func (c *Client) DeviceAdd(busID uint32, devType string, o *device.CreateOptions) (*apitypes.Device, error) {
	return c.DeviceAddCtx(context.Background(), busID, devType, o)
}

func (c *Client) DeviceRemove(busID uint32, devID string) (*apitypes.DeviceRemoveResponse, error) {
	return c.DeviceRemoveCtx(context.Background(), busID, devID)
}

func busParams(busID uint32) map[string]string {
	return map[string]string{"id": strconv.FormatUint(uint64(busID), 10)}
}

func call[T any](ctx context.Context, c *Client, path string, payload any, params map[string]string) (*T, error) {
	raw, err := c.transport.DoCtx(ctx, path, payload, params)
	if err != nil {
		return nil, err
	}
	return parse[T](raw)
}

func parse[T any](data string) (*T, error) {
	if data == "" {
		return nil, errors.New("empty response")
	}
	var problem apitypes.ApiError
	if err := json.Unmarshal([]byte(data), &problem); err == nil && (problem.Status != 0 || problem.Title != "") {
		return nil, &problem
	}
	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
