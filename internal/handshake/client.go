package handshake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/shaiso/Montecarlo/internal/domain"
)

// DefaultTimeout — таймаут одного handshake.
const DefaultTimeout = 3 * time.Second

// Client — gRPC клиент handshake.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

var (
	_ Negotiator = (*Client)(nil)
	_ Budgeted   = (*Client)(nil)
)

// NewClient создаёт клиента. Соединение устанавливается лениво, при первом вызове.
// timeout <= 0 — DefaultTimeout.
func NewClient(target string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("handshake client %s: %w", target, err)
	}

	return &Client{conn: conn, timeout: timeout}, nil
}

// Negotiate отправляет handshake и ждёт ответ не дольше timeout.
func (c *Client) Negotiate(ctx context.Context, workerID string) (domain.HandshakeReply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &domain.HandshakeRequest{WorkerID: workerID}
	reply := new(domain.HandshakeReply)

	if err := c.conn.Invoke(ctx, fullMethodNegotiate, req, reply); err != nil {
		if status.Code(err) == codes.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return domain.HandshakeReply{}, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return domain.HandshakeReply{}, fmt.Errorf("negotiate: %w", err)
	}

	return *reply, nil
}

// Timeout возвращает таймаут одного handshake.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Close закрывает соединение.
func (c *Client) Close() error {
	return c.conn.Close()
}
