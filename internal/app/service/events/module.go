package events

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/himnu2025-blip/synka-billing/pkg/config"
	"github.com/himnu2025-blip/synka-billing/pkg/metrics"
)

// newDispatcher wires the sinks enabled in config. With none configured the
// dispatcher is a no-op.
func newDispatcher(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger, m *metrics.Billing) (*Dispatcher, error) {
	var pubs []Publisher
	if len(cfg.Events.Kafka.Brokers) > 0 {
		producer, err := NewKafkaProducer(cfg.Events.Kafka)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, NewKafkaPublisher(producer, cfg.Events.Kafka.Topic, log))
		log.Infow("entitlement events to kafka", "brokers", cfg.Events.Kafka.Brokers, "topic", cfg.Events.Kafka.Topic)
	}
	if cfg.Events.Redis.Addr != "" {
		client, err := NewRedisClient(context.Background(), cfg.Events.Redis)
		if err != nil {
			for _, p := range pubs {
				_ = p.Close()
			}
			return nil, err
		}
		pubs = append(pubs, NewRedisPublisher(client, cfg.Events.Redis.Channel))
		log.Infow("entitlement events to redis", "addr", cfg.Events.Redis.Addr, "channel", cfg.Events.Redis.Channel)
	}
	d := NewDispatcher(log, m, pubs...)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return d.Close() },
	})
	return d, nil
}

var Module = fx.Options(
	fx.Provide(newDispatcher),
)
