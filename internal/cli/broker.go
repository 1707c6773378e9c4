package cli

import (
	"context"
	"log/slog"

	"github.com/shaiso/Montecarlo/internal/mq"
)

// Broker — брокер с операциями обслуживания очередей.
type Broker interface {
	mq.Broker
	mq.Admin
}

// BrokerFunc открывает брокер; closeFn освобождает соединение.
type BrokerFunc func(ctx context.Context) (b Broker, closeFn func(), err error)

// AMQPBroker возвращает BrokerFunc, подключающийся к RabbitMQ по *url.
func AMQPBroker(url *string, logger *slog.Logger) BrokerFunc {
	return func(ctx context.Context) (Broker, func(), error) {
		conn, err := mq.NewConnection(ctx, mq.ConnectionConfig{URL: *url, Logger: logger})
		if err != nil {
			return nil, nil, err
		}

		if err := mq.SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}

		return mq.NewAMQPBroker(conn, logger), func() { conn.Close() }, nil
	}
}
