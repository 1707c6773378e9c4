package handshake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

// Budgeted — Negotiator со своим таймаутом handshake.
type Budgeted interface {
	Timeout() time.Duration
}

// budget возвращает таймаут negotiator'а; без него — DefaultTimeout.
func budget(n Negotiator) time.Duration {
	if b, ok := n.(Budgeted); ok && b.Timeout() > 0 {
		return b.Timeout()
	}
	return DefaultTimeout
}

// Resolve выполняет handshake и возвращает размер задачи.
//
// При отказе, ошибке или таймауте возвращает fallback вместе с причиной.
// Не блокируется дольше таймаута negotiator'а (Budgeted, иначе DefaultTimeout),
// даже если negotiator игнорирует ctx.
func Resolve(ctx context.Context, n Negotiator, workerID string, fallback int) (int, error) {
	if n == nil {
		telemetry.HandshakeTotal.WithLabelValues("disabled").Inc()
		return fallback, ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, budget(n))
	defer cancel()

	type result struct {
		reply domain.HandshakeReply
		err   error
	}
	done := make(chan result, 1)

	go func() {
		reply, err := n.Negotiate(ctx, workerID)
		done <- result{reply: reply, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		telemetry.HandshakeTotal.WithLabelValues("timeout").Inc()
		return fallback, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	case res = <-done:
	}

	switch {
	case res.err != nil:
		if errors.Is(res.err, ErrTimeout) {
			telemetry.HandshakeTotal.WithLabelValues("timeout").Inc()
		} else {
			telemetry.HandshakeTotal.WithLabelValues("error").Inc()
		}
		return fallback, res.err

	case !res.reply.Accepted:
		telemetry.HandshakeTotal.WithLabelValues("rejected").Inc()
		return fallback, fmt.Errorf("%w: %s", ErrRejected, res.reply.Message)

	case res.reply.UnitSize <= 0:
		telemetry.HandshakeTotal.WithLabelValues("error").Inc()
		return fallback, fmt.Errorf("%w: unit_size=%d", ErrInvalidReply, res.reply.UnitSize)
	}

	telemetry.HandshakeTotal.WithLabelValues("accepted").Inc()
	return res.reply.UnitSize, nil
}
