package meanstoend

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/harveysanders/meanstoend/proto"
)

// Client is a Means to an End protocol client. Inserts are buffered until the next Query or Flush.
type Client struct {
	conn net.Conn
	bufW *bufio.Writer
	bufR *bufio.Reader
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Client{
		conn: conn,
		bufW: bufio.NewWriter(conn),
		bufR: bufio.NewReader(conn),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes a single message to the write buffer.
func (c *Client) Send(msg proto.Message) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("msg.MarshalBinary: %w", err)
	}
	if _, err := c.bufW.Write(data); err != nil {
		return fmt.Errorf("c.bufW.Write: %w", err)
	}
	return nil
}

func (c *Client) Flush() error {
	if err := c.bufW.Flush(); err != nil {
		return fmt.Errorf("c.bufW.Flush: %w", err)
	}
	return nil
}

// Insert sends a price observation. The server does not respond to inserts.
func (c *Client) Insert(timestamp, price int32) error {
	return c.Send(proto.Insert{Timestamp: timestamp, Price: price})
}

// Query sends all buffered messages followed by a query, and waits for the mean price.
func (c *Client) Query(minTime, maxTime int32) (int32, error) {
	if err := c.Send(proto.Query{MinTime: minTime, MaxTime: maxTime}); err != nil {
		return 0, err
	}
	if err := c.Flush(); err != nil {
		return 0, err
	}

	mean, err := proto.ReadMean(c.bufR)
	if err != nil {
		return 0, fmt.Errorf("proto.ReadMean: %w", err)
	}
	return int32(mean), nil
}
