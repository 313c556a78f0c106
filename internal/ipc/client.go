package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Turnstile.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Turnstile.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Turnstile.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AttendanceToday retrieves day summaries and capture events for a date.
// An empty date means the current day.
func (c *Client) AttendanceToday(date string) (*AttendanceTodayResponse, error) {
	var resp AttendanceTodayResponse
	req := AttendanceTodayRequest{Date: date}
	if err := c.client.Call("Turnstile.AttendanceToday", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UnknownList retrieves unknown sightings matching the request filters.
func (c *Client) UnknownList(req UnknownListRequest) (*UnknownListResponse, error) {
	var resp UnknownListResponse
	if err := c.client.Call("Turnstile.UnknownList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UnknownDescribe retrieves a single unknown sighting by id.
func (c *Client) UnknownDescribe(id int64) (*UnknownDescribeResponse, error) {
	var resp UnknownDescribeResponse
	req := UnknownDescribeRequest{ID: id}
	if err := c.client.Call("Turnstile.UnknownDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Turnstile.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Turnstile.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Turnstile.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
