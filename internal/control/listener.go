package control

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/code-ointment/config-dns-daemon/internal/consts"
	"github.com/code-ointment/config-dns-daemon/internal/dnserr"
	"github.com/code-ointment/config-dns-daemon/internal/model"
)

// producer id when the peer cannot be identified
const anonymous = "anonymous"

// Handler folds one producer batch into the host configuration.
type Handler interface {
	Submit(ctx context.Context, producerID string,
		batch []model.ConnectionSnapshot) (*model.EffectiveConfig, error)
	Current() *model.EffectiveConfig
}

type ListenerConfig struct {
	Path           string
	Mode           os.FileMode
	MaxMessageSize int
	ReadTimeout    time.Duration
	Workers        int
}

/*
* Accepts producers on a unix socket.  One message per connection; the
* reply is the acknowledgement or an error line, then the connection is
* closed.
 */
type Listener struct {
	cfg     ListenerConfig
	handler Handler

	ln      *net.UnixListener
	sem     chan struct{}
	wg      sync.WaitGroup
	mutex   sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
}

func NewListener(cfg ListenerConfig, handler Handler) *Listener {

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = consts.MaxMessageSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = consts.ReadTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = consts.Workers
	}
	if cfg.Mode == 0 {
		cfg.Mode = os.FileMode(consts.SocketMode)
	}

	l := Listener{
		cfg:     cfg,
		handler: handler,
		sem:     make(chan struct{}, cfg.Workers),
		conns:   map[net.Conn]struct{}{},
	}
	return &l
}

/*
* Bind the socket.  A stale socket left by a dead daemon is replaced; a
* live one, or anything that is not a socket, is an error.
 */
func (l *Listener) Listen() error {

	path := l.cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("socket dir: %w", err)
	}

	if err := removeStale(path); err != nil {
		return err
	}

	addr := &net.UnixAddr{Name: path, Net: "unix"}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)

	if err := os.Chmod(path, l.cfg.Mode); err != nil {
		ln.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}

	l.ln = ln
	slog.Info("control socket listening", "path", path, "mode", fmt.Sprintf("%o", l.cfg.Mode))
	return nil
}

func removeStale(path string) error {

	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%s: another daemon is listening", path)
	}

	slog.Info("removing stale socket", "path", path)
	return os.Remove(path)
}

func (l *Listener) Addr() string {
	return l.cfg.Path
}

/*
* Accept until ctx is done.  Shutdown closes the socket and every
* in-flight connection; their submissions abort before apply.
 */
func (l *Listener) Serve(ctx context.Context) error {

	if l.ln == nil {
		return errors.New("listener not bound")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.shutdown()
		case <-done:
		}
	}()

	var delay time.Duration
	for {
		conn, err := l.ln.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.wg.Wait()
				slog.Info("control socket closed", "path", l.cfg.Path)
				return nil
			}
			delay = acceptBackoff(delay)
			slog.Error("accept failed", "error", err, "retry in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		// bounded workers: accept waits for a free slot
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			continue
		}

		if !l.track(conn) {
			<-l.sem
			conn.Close()
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer func() { <-l.sem }()
			defer l.untrack(conn)
			l.handle(ctx, conn)
		}()
	}
}

// Accept errors such as EMFILE persist for a while; back off 5ms doubling
// up to 1s.
func acceptBackoff(prev time.Duration) time.Duration {

	if prev == 0 {
		return 5 * time.Millisecond
	}
	if next := prev * 2; next < time.Second {
		return next
	}
	return time.Second
}

func (l *Listener) ListenAndServe(ctx context.Context) error {

	if err := l.Listen(); err != nil {
		return err
	}
	return l.Serve(ctx)
}

func (l *Listener) shutdown() {

	l.mutex.Lock()
	l.closing = true
	for c := range l.conns {
		c.Close()
	}
	l.mutex.Unlock()

	l.ln.Close()
}

func (l *Listener) track(conn net.Conn) bool {

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closing {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {

	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.conns, conn)
}

/*
* Serve one producer.  The shared state is only touched inside Submit,
* after the whole message has been read.
 */
func (l *Listener) handle(ctx context.Context, conn *net.UnixConn) {

	defer conn.Close()

	producer := peerIdentity(conn)
	conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))

	msg, err := readMessage(conn, l.cfg.MaxMessageSize)
	if err != nil {
		if ctx.Err() != nil {
			err = dnserr.New(dnserr.KindCanceled, ctx.Err())
		}
		slog.Warn("request rejected", "producer", producer,
			"kind", dnserr.KindOf(err), "error", err)
		l.reply(conn, err)
		return
	}

	if isStatusQuery(msg) {
		l.status(conn)
		return
	}

	batch, err := model.ParseBatch(msg)
	if err != nil {
		slog.Warn("request rejected", "producer", producer,
			"kind", dnserr.KindOf(err), "error", err)
		l.reply(conn, err)
		return
	}

	slog.Debug("batch received", "producer", producer, "connections", len(batch))
	_, err = l.handler.Submit(ctx, producer, batch)
	l.reply(conn, err)
}

func (l *Listener) reply(conn net.Conn, err error) {

	conn.SetWriteDeadline(time.Now().Add(l.cfg.ReadTimeout))

	var out []byte
	if err == nil {
		out = []byte(consts.Ack)
	} else {
		out = []byte(consts.ErrorPrefix + err.Error() + "\n")
	}
	if _, werr := conn.Write(out); werr != nil {
		slog.Debug("reply not delivered", "error", werr)
	}
}

func (l *Listener) status(conn net.Conn) {

	conn.SetWriteDeadline(time.Now().Add(l.cfg.ReadTimeout))

	out, err := encodeStatus(l.handler.Current())
	if err != nil {
		slog.Error("status encoding failed", "error", err)
		l.reply(conn, err)
		return
	}
	if _, err := conn.Write(out); err != nil {
		slog.Debug("status not delivered", "error", err)
	}
}
