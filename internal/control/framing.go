package control

/*
* Message framing on the control socket.
*
*   request:  one JSON array (or the word "status") terminated by "\n"
*   response: "Success" with no newline, a JSON line for status, or
*             "Error: <kind>: <detail>\n"
*
* The server closes after every response; clients read until EOF.
 */
import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/code-ointment/config-dns-daemon/internal/consts"
	"github.com/code-ointment/config-dns-daemon/internal/dnserr"
	"github.com/code-ointment/config-dns-daemon/internal/model"
)

/*
* Read up to the first newline.  The newline is not part of the message
* and does not count against max.
 */
func readMessage(r io.Reader, max int) ([]byte, error) {

	br := bufio.NewReader(r)
	var msg []byte

	for {
		chunk, err := br.ReadSlice('\n')
		msg = append(msg, chunk...)

		if err == nil {
			msg = msg[:len(msg)-1]
			if len(msg) > max {
				return nil, tooLarge(max)
			}
			return msg, nil
		}

		if len(msg) > max {
			return nil, tooLarge(max)
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case isTimeout(err):
			return nil, dnserr.New(dnserr.KindTimeout,
				errors.New("no newline before read deadline"))
		case errors.Is(err, io.EOF) && len(msg) == 0:
			return nil, dnserr.New(dnserr.KindMalformedPayload, errors.New("empty message"))
		case errors.Is(err, io.EOF):
			return nil, dnserr.New(dnserr.KindMalformedPayload,
				errors.New("message not newline terminated"))
		}
		return nil, dnserr.New(dnserr.KindMalformedPayload, err)
	}
}

func tooLarge(max int) error {
	return dnserr.Newf(dnserr.KindMessageTooLarge, "message exceeds %d bytes", max)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isStatusQuery(msg []byte) bool {
	return string(bytes.TrimSpace(msg)) == consts.StatusQuery
}

func encodeStatus(cfg *model.EffectiveConfig) ([]byte, error) {

	out, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

/*
* Turn a server reply into an error.  Nil means "Success".
 */
func parseReply(reply []byte) error {

	if string(reply) == consts.Ack {
		return nil
	}

	msg, ok := strings.CutPrefix(string(reply), consts.ErrorPrefix)
	if !ok {
		if len(reply) == 0 {
			return dnserr.New(dnserr.KindConnect,
				errors.New("connection closed without reply"))
		}
		return fmt.Errorf("unexpected reply %q", reply)
	}

	kind, detail := dnserr.ParseKind(strings.TrimSpace(msg))
	return &dnserr.Error{Kind: kind, Err: errors.New(detail)}
}
