package probe

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
)

// MaxDatagramSize is the largest UDP response any strategy in this module
// expects to read, matching the teacher's udplistener.maxMsgSize headroom
// decision (generous enough for any of the binary protocols we speak).
const MaxDatagramSize = 8192

// DialUDP opens a UDP "connection" (a bound socket with a default peer)
// to addr, honoring ctx cancellation by closing the socket from a watcher
// goroutine — the same ctx.Done()-closes-the-listener idiom the teacher
// uses in internal/servers/grpc.newGRPCServer.
func DialUDP(ctx context.Context, addr string) (*net.UDPConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errs.New(errs.Transport, "resolve udp address", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errs.New(errs.Transport, "dial udp", err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	return conn, nil
}

// RoundTrip writes payload to conn, then reads a single datagram within
// timeout. It is the base building block every UDP strategy composes into
// request/response or challenge/response exchanges.
func RoundTrip(ctx context.Context, conn *net.UDPConn, payload []byte, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Timeout, "round trip canceled before send", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, errs.New(errs.Transport, "write udp payload", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, errs.New(errs.Transport, "set read deadline", err)
	}
	buf := make([]byte, MaxDatagramSize)
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, errs.New(errs.Timeout, "udp read timed out", err)
		}
		return nil, errs.New(errs.Transport, "read udp response", err)
	}
	return buf[:n], nil
}

// MultiRoundTrip performs a sequence of write/read exchanges over the same
// connection, used by challenge-then-response protocols (Source, GameSpy,
// Quake families) where the first reply carries a challenge token that
// must be echoed back in a second request.
func MultiRoundTrip(ctx context.Context, conn *net.UDPConn, timeout time.Duration, build func(step int, prev []byte) ([]byte, bool)) ([][]byte, error) {
	var results [][]byte
	var prev []byte
	for step := 0; ; step++ {
		payload, more := build(step, prev)
		if payload == nil {
			break
		}
		resp, err := RoundTrip(ctx, conn, payload, timeout)
		if err != nil {
			return results, err
		}
		results = append(results, resp)
		prev = resp
		if !more {
			break
		}
	}
	return results, nil
}

// ThrottledLogger logs the Nth-and-every-Nth-after occurrence of a
// recurring error condition, rather than once per probe, so that a
// strategy hammered by a flaky endpoint doesn't flood the logs. This
// adapts the teacher's probeErr/logErrs throttle-counter pattern in
// udplistener.go to a reusable, protocol-agnostic helper.
type ThrottledLogger struct {
	every int32
	count int32
}

// NewThrottledLogger returns a logger that fires on every Nth call.
func NewThrottledLogger(every int) *ThrottledLogger {
	if every <= 0 {
		every = 1
	}
	return &ThrottledLogger{every: int32(every)}
}

// Should reports whether the caller should log this occurrence.
func (t *ThrottledLogger) Should() bool {
	n := atomic.AddInt32(&t.count, 1)
	if n >= t.every {
		atomic.StoreInt32(&t.count, 0)
		return true
	}
	return false
}

// WithDeadline is a convenience that derives a child context bounded by
// timeout and returns it along with its cancel func, for strategies that
// need a context to pass into helpers that accept one (e.g. HTTPClient.Do).
func WithDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// AddrPort formats an address/port pair the way every strategy's Connect
// field should render it.
func AddrPort(address string, port int) string {
	return fmt.Sprintf("%s:%d", address, port)
}
