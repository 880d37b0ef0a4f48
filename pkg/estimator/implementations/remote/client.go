// Package remote runs an estimator on another host, reachable over a
// websocket, so that heavy models can live next to an accelerator while
// the stream engine stays with the audio device.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gorilla/websocket"
	"github.com/xaionaro-go/dtln/pkg/estimator"
)

const DefaultTimeout = time.Second

// Estimator is the client side of the protocol. A connection that
// failed to send or receive is dropped and redialed by the next
// Estimate, so a single slow answer fails only its own block.
type Estimator struct {
	Hello   Hello
	URL     string
	Stage   estimator.Stage
	Timeout time.Duration

	locker sync.Mutex
	conn   *websocket.Conn
	closed bool
	buf    []byte
}

var _ estimator.Estimator = (*Estimator)(nil)

// EndpointURL converts a base URL like "http://host:port" into the
// websocket endpoint of the given stage.
func EndpointURL(baseURL string, stage estimator.Stage) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://"):
		u = "ws://" + u
	}
	return u + PathPrefix + stage.String()
}

func Dial(
	ctx context.Context,
	baseURL string,
	stage estimator.Stage,
	timeout time.Duration,
) (_ret *Estimator, _err error) {
	url := EndpointURL(baseURL, stage)
	logger.Debugf(ctx, "Dial: %s", url)
	defer func() { logger.Debugf(ctx, "/Dial: %s: %v", url, _err) }()

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, hello, err := connect(ctx, url, stage, timeout)
	if err != nil {
		return nil, err
	}
	return &Estimator{
		Hello:   hello,
		URL:     url,
		Stage:   stage,
		Timeout: timeout,
		conn:    conn,
	}, nil
}

func connect(
	ctx context.Context,
	url string,
	stage estimator.Stage,
	timeout time.Duration,
) (*websocket.Conn, Hello, error) {
	dialCtx, cancelFn := context.WithTimeout(ctx, timeout)
	defer cancelFn()
	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, Hello{}, fmt.Errorf("unable to connect to %s (HTTP %d): %w", url, resp.StatusCode, err)
		}
		return nil, Hello{}, fmt.Errorf("unable to connect to %s: %w", url, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var hello Hello
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, Hello{}, fmt.Errorf("unable to read the hello message: %w", err)
	}
	if estimator.StageFromString(hello.Stage) != stage {
		conn.Close()
		return nil, Hello{}, fmt.Errorf("the server hosts the %q stage, but %q was requested", hello.Stage, stage)
	}
	if hello.InputSize <= 0 || hello.OutputSize <= 0 || hello.StateSize < 0 {
		conn.Close()
		return nil, Hello{}, fmt.Errorf("invalid sizes in the hello message: %#+v", hello)
	}
	return conn, hello, nil
}

// reconnect replaces a dropped connection; the sizes must not change.
func (e *Estimator) reconnect(ctx context.Context) error {
	logger.Debugf(ctx, "reconnecting to %s", e.URL)
	conn, hello, err := connect(ctx, e.URL, e.Stage, e.Timeout)
	if err != nil {
		return err
	}
	if hello != e.Hello {
		conn.Close()
		return fmt.Errorf("the server changed the estimator from %#+v to %#+v", e.Hello, hello)
	}
	e.conn = conn
	return nil
}

// dropConn closes a connection that is no longer usable: gorilla
// websocket connections stay broken after a read error, and a late
// response would otherwise be taken for the answer to the next request.
func (e *Estimator) dropConn() {
	if e.conn == nil {
		return
	}
	_ = e.conn.Close()
	e.conn = nil
}

func (e *Estimator) Close() error {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.closed = true
	if e.conn == nil {
		return nil
	}
	_ = e.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(e.Timeout),
	)
	err := e.conn.Close()
	e.conn = nil
	return err
}

func (e *Estimator) InputSize() int {
	return e.Hello.InputSize
}

func (e *Estimator) OutputSize() int {
	return e.Hello.OutputSize
}

func (e *Estimator) StateSize() int {
	return e.Hello.StateSize
}

func (e *Estimator) Estimate(
	ctx context.Context,
	input []float32,
	stateIn []float32,
	output []float32,
	stateOut []float32,
) (_err error) {
	logger.Tracef(ctx, "Estimate")
	defer func() { logger.Tracef(ctx, "/Estimate: %v", _err) }()

	if err := estimator.CheckSizes(e, input, stateIn, output, stateOut); err != nil {
		return err
	}

	e.locker.Lock()
	defer e.locker.Unlock()
	if e.closed {
		return fmt.Errorf("the estimator is closed")
	}
	if e.conn == nil {
		if err := e.reconnect(ctx); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(e.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = e.conn.SetWriteDeadline(deadline)
	_ = e.conn.SetReadDeadline(deadline)

	e.buf = encodeFrame(e.buf, input, stateIn)
	if err := e.conn.WriteMessage(websocket.BinaryMessage, e.buf); err != nil {
		e.dropConn()
		return fmt.Errorf("unable to send the request: %w", err)
	}

	msgType, msg, err := e.conn.ReadMessage()
	if err != nil {
		e.dropConn()
		return fmt.Errorf("unable to receive the response: %w", err)
	}
	switch msgType {
	case websocket.BinaryMessage:
		return decodeFrame(msg, output, stateOut)
	case websocket.TextMessage:
		var errMsg ErrorMessage
		if err := json.Unmarshal(msg, &errMsg); err != nil {
			return fmt.Errorf("unable to parse the error message %q: %w", msg, err)
		}
		return fmt.Errorf("the remote estimator failed: %s", errMsg.Error)
	default:
		return fmt.Errorf("unexpected message type %d", msgType)
	}
}

// Factory dials a new connection per estimator.
type Factory struct {
	URL     string
	Timeout time.Duration
}

var _ estimator.Factory = Factory{}

func (f Factory) NewEstimator(ctx context.Context, stage estimator.Stage) (estimator.Estimator, error) {
	return Dial(ctx, f.URL, stage, f.Timeout)
}

// Server hosts estimators built by Factory, one per websocket connection.
type Server struct {
	Factory  estimator.Factory
	Upgrader websocket.Upgrader
}

func NewServer(factory estimator.Factory) *Server {
	return &Server{
		Factory: factory,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and serves Estimate calls until
// the client disconnects.
func (s *Server) ServeHTTP(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	stage estimator.Stage,
) (_err error) {
	logger.Debugf(ctx, "ServeHTTP: %s", stage)
	defer func() { logger.Debugf(ctx, "/ServeHTTP: %s: %v", stage, _err) }()

	est, err := s.Factory.NewEstimator(ctx, stage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return fmt.Errorf("unable to initialize the %s estimator: %w", stage, err)
	}
	defer est.Close()

	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("unable to upgrade the connection: %w", err)
	}
	defer conn.Close()
	return Serve(ctx, conn, stage, est)
}

// Serve runs the server side of the protocol on an established connection.
func Serve(
	ctx context.Context,
	conn *websocket.Conn,
	stage estimator.Stage,
	est estimator.Estimator,
) error {
	hello := NewHello(stage, est)
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("unable to send the hello message: %w", err)
	}
	conn.SetReadLimit(int64(hello.InputSize+hello.StateSize)*int64(sampleFormat.Size()) + 1024)

	input := make([]float32, hello.InputSize)
	stateIn := make([]float32, hello.StateSize)
	output := make([]float32, hello.OutputSize)
	stateOut := make([]float32, hello.StateSize)
	var buf []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("unable to read a request: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			if err := conn.WriteMessage(websocket.TextMessage, encodeError(fmt.Errorf("expected a binary message"))); err != nil {
				return err
			}
			continue
		}

		err = decodeFrame(msg, input, stateIn)
		if err == nil {
			err = est.Estimate(ctx, input, stateIn, output, stateOut)
		}
		if err != nil {
			logger.Debugf(ctx, "unable to estimate: %v", err)
			if err := conn.WriteMessage(websocket.TextMessage, encodeError(err)); err != nil {
				return fmt.Errorf("unable to send an error: %w", err)
			}
			continue
		}

		buf = encodeFrame(buf, output, stateOut)
		if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
			return fmt.Errorf("unable to send a response: %w", err)
		}
	}
}
