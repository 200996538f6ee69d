package server

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// acedb socket server message framing.
const (
	aceMagic          int32 = 0x12345678
	aceInterfaceVer   int32 = 1
	aceTypeLen              = 30
	aceHeaderLen            = 5*4 + aceTypeLen
	aceDefaultMaxSize int32 = 5 * 1024 * 1024

	aceMsgReq    = "ACESERV_MSGREQ"
	aceMsgData   = "ACESERV_MSGDATA"
	aceMsgOK     = "ACESERV_MSGOK"
	aceMsgEncore = "ACESERV_MSGENCORE"
	aceMsgFail   = "ACESERV_MSGFAIL"
	aceMsgKill   = "ACESERV_MSGKILL"

	aceHello     = "bonjour"
	aceHelloDone = "et bonjour a vous"
	aceEncore    = "encore"
)

type aceHeader struct {
	Magic    int32
	Length   int32
	Version  int32
	ClientID int32
	MaxBytes int32
	Type     string
}

// writeAceMessage writes one framed message; the body is NUL terminated.
func writeAceMessage(w io.Writer, h aceHeader, body string) error {
	if len(h.Type) > aceTypeLen {
		return fmt.Errorf("acedb: message type %q too long", h.Type)
	}
	var buf bytes.Buffer
	h.Magic = aceMagic
	h.Length = int32(len(body) + 1)
	for _, v := range []int32{h.Magic, h.Length, h.Version, h.ClientID, h.MaxBytes} {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	var typ [aceTypeLen]byte
	copy(typ[:], h.Type)
	buf.Write(typ[:])
	buf.WriteString(body)
	buf.WriteByte(0)
	_, err := w.Write(buf.Bytes())
	return err
}

// readAceMessage reads one framed message.
func readAceMessage(r io.Reader, maxLen int32) (aceHeader, string, error) {
	var raw [aceHeaderLen]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return aceHeader{}, "", err
	}
	var h aceHeader
	ints := []*int32{&h.Magic, &h.Length, &h.Version, &h.ClientID, &h.MaxBytes}
	for i, p := range ints {
		*p = int32(binary.BigEndian.Uint32(raw[i*4:]))
	}
	h.Type = strings.TrimRight(string(raw[20:]), "\x00")
	if h.Magic != aceMagic {
		return h, "", fmt.Errorf("acedb: bad magic %#x", h.Magic)
	}
	if h.Length < 0 || (maxLen > 0 && h.Length > maxLen) {
		return h, "", fmt.Errorf("acedb: message length %d out of range", h.Length)
	}
	body := make([]byte, h.Length)
	if _, err := io.ReadFull(r, body); err != nil {
		return h, "", err
	}
	return h, strings.TrimRight(string(body), "\x00"), nil
}

// aceHash computes the handshake response md5(md5(user+passwd)+nonce).
func aceHash(user, passwd, nonce string) string {
	inner := md5.Sum([]byte(user + passwd))
	outer := md5.Sum([]byte(hex.EncodeToString(inner[:]) + nonce))
	return hex.EncodeToString(outer[:])
}

// aceConn is one client connection to an acedb socket server.
type aceConn struct {
	conn     net.Conn
	clientID int32
	maxBytes int32
	timeout  time.Duration
}

func dialAce(ctx context.Context, host string, port int, timeout time.Duration) (*aceConn, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, err
	}
	return &aceConn{conn: c, maxBytes: aceDefaultMaxSize, timeout: timeout}, nil
}

// guard applies the request deadline and makes ctx cancellation interrupt
// blocked socket I/O. The returned func must be called when the exchange ends.
func (c *aceConn) guard(ctx context.Context) func() bool {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)
	return context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
}

func (c *aceConn) send(typ, body string) error {
	return writeAceMessage(c.conn, aceHeader{Version: aceInterfaceVer, ClientID: c.clientID, MaxBytes: c.maxBytes, Type: typ}, body)
}

// exchange sends one request and collects the reply, following ENCORE
// continuations.
func (c *aceConn) exchange(ctx context.Context, query string) (string, error) {
	stop := c.guard(ctx)
	defer stop()
	if err := c.send(aceMsgReq, query); err != nil {
		return "", c.ioError(ctx, err)
	}
	var out strings.Builder
	for {
		h, body, err := readAceMessage(c.conn, c.maxBytes+aceHeaderLen)
		if err != nil {
			return "", c.ioError(ctx, err)
		}
		if h.ClientID != 0 {
			c.clientID = h.ClientID
		}
		switch h.Type {
		case aceMsgOK, aceMsgData:
			out.WriteString(body)
			return out.String(), nil
		case aceMsgEncore:
			out.WriteString(body)
			if err := c.send(aceMsgReq, aceEncore); err != nil {
				return "", c.ioError(ctx, err)
			}
		case aceMsgFail:
			return "", newError(ResponseReqFail, "acedb request %q failed: %s", firstWord(query), body)
		case aceMsgKill:
			return "", newError(ResponseServerDied, "acedb server terminated the connection: %s", body)
		default:
			return "", newError(ResponseReqFail, "acedb: unexpected message type %q", h.Type)
		}
	}
}

func (c *aceConn) ioError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return wrapError(ResponseOf(ctx.Err()), err, "acedb")
	}
	if ResponseOf(err) == ResponseTimedOut {
		return wrapError(ResponseTimedOut, err, "acedb")
	}
	return wrapError(ResponseServerDied, err, "acedb connection lost")
}

// handshake performs the bonjour exchange.
func (c *aceConn) handshake(ctx context.Context, user, passwd string) error {
	nonce, err := c.exchange(ctx, aceHello)
	if err != nil {
		return err
	}
	reply, err := c.exchange(ctx, user+" "+aceHash(user, passwd, strings.TrimSpace(nonce)))
	if err != nil {
		return err
	}
	if !strings.Contains(reply, aceHelloDone) {
		return newError(ResponseReqFail, "acedb handshake rejected: %s", reply)
	}
	return nil
}

func (c *aceConn) close() error { return c.conn.Close() }

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return s
}
