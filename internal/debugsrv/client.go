package debugsrv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/andrei-cloud/anet"
)

// Client talks to one debug port.
type Client struct {
	timeout time.Duration
	send    func(context.Context, *[]byte) ([]byte, error)
	close   func()
}

// Dial returns a client for addr. Every request is bounded by timeout.
func Dial(addr string, timeout time.Duration) *Client {
	factory := func(addr string) (anet.PoolItem, error) {
		return net.DialTimeout("tcp", addr, timeout)
	}

	p := anet.NewPool(1, factory, addr, nil)
	broker := anet.NewBroker([]anet.Pool{p}, 1, nil, &anet.BrokerConfig{
		WriteTimeout: timeout,
		ReadTimeout:  timeout,
		QueueSize:    16,
	})
	go broker.Start()

	return &Client{
		timeout: timeout,
		send:    broker.SendContext,
		close: func() {
			broker.Close()
			p.Close()
		},
	}
}

// Close releases the connection.
func (c *Client) Close() {
	c.close()
}

// Status queries ST.
func (c *Client) Status() (StatusReply, error) {
	var out StatusReply
	err := c.call("ST", nil, &out)

	return out, err
}

// Modules queries MD.
func (c *Client) Modules() ([]string, error) {
	var out []string
	err := c.call("MD", nil, &out)

	return out, err
}

// Eval queries EV with expr.
func (c *Client) Eval(expr string) (string, error) {
	var out string
	err := c.call("EV", []byte(expr), &out)

	return out, err
}

// Process queries PS.
func (c *Client) Process() (ProcessStats, error) {
	var out ProcessStats
	err := c.call("PS", nil, &out)

	return out, err
}

// RemoteError is a non-success status returned by the server.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Code + ": " + e.Message
}

func (c *Client) call(cmd string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req := append([]byte(cmd), payload...)
	resp, err := c.send(ctx, &req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", cmd, err)
	}
	if len(resp) < 4 {
		return errors.New("short debug response")
	}
	if want := incrementCode(cmd); string(resp[:2]) != want {
		return fmt.Errorf("unexpected response code: got %s, want %s", resp[:2], want)
	}

	status, body := string(resp[2:4]), resp[4:]
	if status != "00" {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return &RemoteError{Code: status, Message: e.Error}
	}

	return json.Unmarshal(body, out)
}
