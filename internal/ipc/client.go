package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const serviceName = "Recap"

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
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Submit enqueues sourceRef with the named priority ("" means normal).
func (c *Client) Submit(sourceRef, priority string) (*SubmitResponse, error) {
	return call[SubmitResponse](c, "Submit", SubmitRequest{SourceRef: sourceRef, Priority: priority})
}

// Show returns a single job.
func (c *Client) Show(id int64) (*ShowResponse, error) {
	return call[ShowResponse](c, "Show", ShowRequest{ID: id})
}

// QueueList returns jobs optionally filtered by stage.
func (c *Client) QueueList(stages []string) (*QueueListResponse, error) {
	return call[QueueListResponse](c, "QueueList", QueueListRequest{Stages: stages})
}

// QueueStats returns per-stage job counts.
func (c *Client) QueueStats() (*QueueStatsResponse, error) {
	return call[QueueStatsResponse](c, "QueueStats", QueueStatsRequest{})
}

// QueueClear removes jobs in scope ("all", "completed", or "failed").
func (c *Client) QueueClear(scope string) (*QueueClearResponse, error) {
	return call[QueueClearResponse](c, "QueueClear", QueueClearRequest{Scope: scope})
}

// QueueRetry retries failed jobs; no ids retries all of them.
func (c *Client) QueueRetry(ids []int64) (*QueueRetryResponse, error) {
	return call[QueueRetryResponse](c, "QueueRetry", QueueRetryRequest{IDs: ids})
}

// QueueCancel cancels running or queued jobs.
func (c *Client) QueueCancel(ids []int64) (*QueueCancelResponse, error) {
	return call[QueueCancelResponse](c, "QueueCancel", QueueCancelRequest{IDs: ids})
}

// QueueRemove deletes jobs no execution owns.
func (c *Client) QueueRemove(ids []int64) (*QueueRemoveResponse, error) {
	return call[QueueRemoveResponse](c, "QueueRemove", QueueRemoveRequest{IDs: ids})
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	return call[QueueHealthResponse](c, "QueueHealth", QueueHealthRequest{})
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
