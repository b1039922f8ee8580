package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/code-ointment/config-dns-daemon/internal/consts"
	"github.com/code-ointment/config-dns-daemon/internal/dnserr"
	"github.com/code-ointment/config-dns-daemon/internal/model"
)

// Client is the producer side of the control socket.
type Client struct {
	Path    string
	Timeout time.Duration
}

func NewClient(path string, timeout time.Duration) *Client {

	if timeout <= 0 {
		timeout = consts.DialTimeout
	}
	return &Client{Path: path, Timeout: timeout}
}

/*
* Send one batch.  Returns nil once the daemon acknowledged it with
* "Success"; any rejection comes back as a dnserr.Error of its kind.
 */
func (c *Client) Send(ctx context.Context, batch []model.ConnectionSnapshot) error {

	payload, err := model.EncodeBatch(batch)
	if err != nil {
		return dnserr.New(dnserr.KindMalformedPayload, err)
	}

	reply, err := c.roundTrip(ctx, payload)
	if err != nil {
		return err
	}
	return parseReply(reply)
}

// Status fetches the daemon's active configuration.
func (c *Client) Status(ctx context.Context) (*model.EffectiveConfig, error) {

	reply, err := c.roundTrip(ctx, []byte(consts.StatusQuery))
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(reply, []byte(consts.ErrorPrefix)) {
		return nil, parseReply(reply)
	}

	cfg := model.NewEffectiveConfig()
	if err := json.Unmarshal(reply, cfg); err != nil {
		return nil, dnserr.New(dnserr.KindMalformedPayload, err)
	}
	return cfg, nil
}

func (c *Client) roundTrip(ctx context.Context, payload []byte) ([]byte, error) {

	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "unix", c.Path)
	if err != nil {
		return nil, dnserr.New(dnserr.KindConnect, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	// The daemon may reject and close before taking the whole payload;
	// its reply is still worth reading.
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		slog.Debug("write to daemon incomplete", "error", err)
	}

	reply, err := io.ReadAll(io.LimitReader(conn, int64(consts.MaxMessageSize)))
	if err != nil && len(reply) == 0 {
		if isTimeout(err) {
			return nil, dnserr.New(dnserr.KindTimeout, err)
		}
		if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
			return nil, dnserr.New(dnserr.KindCanceled, err)
		}
		return nil, dnserr.New(dnserr.KindConnect, err)
	}
	return reply, nil
}
