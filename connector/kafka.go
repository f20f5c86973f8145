package connector

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	"github.com/ceyewan/routesync/clog"
)

type kafkaConnector struct {
	*link[*kgo.Client]
}

// NewKafka 创建 Kafka 连接器。franz-go 惰性建连，探活用 Ping 确认至少一个 broker 可达
func NewKafka(cfg *KafkaConfig, opts ...Option) (KafkaConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opt := applyOptions(opts)

	l := newLink[*kgo.Client]("kafka", cfg.Name, clog.Strings("seeds", cfg.Seed), opt)
	l.drv = driver[*kgo.Client]{
		dial: func(context.Context) (*kgo.Client, error) {
			kopts := []kgo.Opt{
				kgo.SeedBrokers(cfg.Seed...),
				kgo.ClientID(cfg.ClientID),
				kgo.RequestTimeoutOverhead(cfg.RequestTimeout),
				kgo.WithLogger(kgoLogger{l.logger}),
			}
			if cfg.User != "" {
				kopts = append(kopts, kgo.SASL(plain.Auth{User: cfg.User, Pass: cfg.Password}.AsMechanism()))
			}
			return kgo.NewClient(append(kopts, opt.kafkaOpts...)...)
		},
		probe: func(ctx context.Context, client *kgo.Client) error {
			return client.Ping(ctx)
		},
		release: func(client *kgo.Client) error {
			client.Close()
			return nil
		},
	}
	return kafkaConnector{l}, nil
}

// kgoLogger 把 franz-go 的键值日志转成 clog 字段
type kgoLogger struct {
	logger clog.Logger
}

func (kgoLogger) Level() kgo.LogLevel { return kgo.LogLevelInfo }

func (k kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := make([]clog.Field, 0, len(keyvals)/2)
	for i := 1; i < len(keyvals); i += 2 {
		if key, ok := keyvals[i-1].(string); ok {
			fields = append(fields, clog.Any(key, keyvals[i]))
		}
	}

	log := k.logger.Debug
	switch level {
	case kgo.LogLevelError:
		log = k.logger.Error
	case kgo.LogLevelWarn:
		log = k.logger.Warn
	case kgo.LogLevelInfo:
		log = k.logger.Info
	}
	log(msg, fields...)
}
