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

// Start resumes ingestion.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Hopper.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop halts ingestion intake.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Hopper.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Hopper.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Progress retrieves pipeline progress for the run in flight.
func (c *Client) Progress() (*ProgressResponse, error) {
	var resp ProgressResponse
	if err := c.client.Call("Hopper.Progress", ProgressRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResultsList returns all processed-file records.
func (c *Client) ResultsList() (*ResultsListResponse, error) {
	var resp ResultsListResponse
	if err := c.client.Call("Hopper.ResultsList", ResultsListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResultsKeep updates the keep flag for one filename.
func (c *Client) ResultsKeep(filename string, keep bool) (*ResultsKeepResponse, error) {
	var resp ResultsKeepResponse
	req := ResultsKeepRequest{Filename: filename, Keep: keep}
	if err := c.client.Call("Hopper.ResultsKeep", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResultsForget removes a record so the file can be re-ingested.
func (c *Client) ResultsForget(filename string) (*ResultsForgetResponse, error) {
	var resp ResultsForgetResponse
	req := ResultsForgetRequest{Filename: filename}
	if err := c.client.Call("Hopper.ResultsForget", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
