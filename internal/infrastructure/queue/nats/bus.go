package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/infrastructure/resilience"
)

// indexerQueueGroup spreads record-changed events across worker replicas.
// Cache invalidations are broadcast so every API replica sees them.
const indexerQueueGroup = "indexers"

type Subjects struct {
	RecordChanged    string
	CacheInvalidated string
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	ClientName           string
}

// publisher is the part of *nats.Conn used on the publish path.
type publisher interface {
	Publish(subject string, data []byte) error
}

type Bus struct {
	conn      *nats.Conn
	publisher publisher
	subjects  Subjects
	executor  *resilience.Executor
}

func NewWithOptions(url string, subjects Subjects, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.ClientName
	if name == "" {
		name = "catalog-search"
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:      conn,
		publisher: conn,
		subjects:  subjects,
		executor:  options.ResilienceExecutor,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishRecordChanged(ctx context.Context, recordID int64) error {
	return b.publish(ctx, b.subjects.RecordChanged, encodeRecordID(recordID))
}

func (b *Bus) PublishCacheInvalidated(ctx context.Context) error {
	return b.publish(ctx, b.subjects.CacheInvalidated, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
}

// SubscribeRecordChanged blocks until ctx is done, then drains the subscription.
func (b *Bus) SubscribeRecordChanged(ctx context.Context, handler func(context.Context, int64) error) error {
	return b.subscribe(ctx, b.subjects.RecordChanged, indexerQueueGroup, func(handlerCtx context.Context, data []byte) error {
		id, err := decodeRecordID(data)
		if err != nil {
			return err
		}
		return handler(handlerCtx, id)
	})
}

// SubscribeCacheInvalidated blocks until ctx is done, then drains the subscription.
func (b *Bus) SubscribeCacheInvalidated(ctx context.Context, handler func(context.Context) error) error {
	return b.subscribe(ctx, b.subjects.CacheInvalidated, "", func(handlerCtx context.Context, _ []byte) error {
		return handler(handlerCtx)
	})
}

func (b *Bus) publish(ctx context.Context, subject string, data []byte) error {
	call := func(_ context.Context) error {
		if err := b.publisher.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return busError("nats publish", err)
}

func (b *Bus) subscribe(ctx context.Context, subject, group string, handle func(context.Context, []byte) error) error {
	cb := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handle(handlerCtx, msg.Data); err != nil {
			slog.Error("event_handler_failed", "subject", subject, "payload", string(msg.Data), "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group == "" {
		sub, err = b.conn.Subscribe(subject, cb)
	} else {
		sub, err = b.conn.QueueSubscribe(subject, group, cb)
	}
	if err != nil {
		return busError("nats subscribe", fmt.Errorf("subscribe %s: %w", subject, err))
	}

	if err := b.conn.Flush(); err != nil {
		return busError("nats subscribe", fmt.Errorf("flush %s: %w", subject, err))
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return busError("nats drain", fmt.Errorf("drain %s: %w", subject, err))
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return busError("nats drain", fmt.Errorf("flush %s: %w", subject, err))
	}
	return nil
}

func encodeRecordID(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

func decodeRecordID(data []byte) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "decode record id", fmt.Errorf("payload %q", string(data)))
	}
	return id, nil
}
