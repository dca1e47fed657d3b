package opcua

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

var ErrSourceClosed = errors.New("opcua: source closed")

// Source turns the notifications of one OPC UA subscription into records.
// Data changes become Temperature records, status changes become lifecycle
// records without a payload.
type Source struct {
	notify  chan *opcua.PublishNotificationData
	handles map[uint32]NodeConfig
	topic   string
	obs     ports.Observability

	mu      sync.Mutex
	pending []*opcua.PublishNotificationData
	seq     map[string]uint64

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	release   func(ctx context.Context) error
}

// Open connects to cfg.Endpoint, subscribes and monitors every configured node.
func Open(ctx context.Context, cfg Config, topic string, obs ports.Observability) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(cfg.SecurityPolicy)),
		opcua.ApplicationName(cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}

	client, err := opcua.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}

	notify := make(chan *opcua.PublishNotificationData, len(cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: cfg.PublishInterval,
	}, notify)
	if err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("opcua subscribe: %w", err)
	}

	release := func(ctx context.Context) error {
		var err error
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
		return err
	}

	handles := make(map[uint32]NodeConfig, len(cfg.Nodes))
	for i, node := range cfg.Nodes {
		nodeID, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			_ = release(ctx)
			return nil, fmt.Errorf("parse node id %q: %w", node.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(cfg.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			_ = release(ctx)
			return nil, fmt.Errorf("monitor node %q: %w", node.NodeID, err)
		}
		if len(res.Results) == 0 {
			_ = release(ctx)
			return nil, fmt.Errorf("monitor node %q failed: empty result", node.NodeID)
		}
		if res.Results[0].StatusCode != ua.StatusOK {
			_ = release(ctx)
			return nil, fmt.Errorf("monitor node %q failed: %s", node.NodeID, res.Results[0].StatusCode)
		}
		handles[handle] = node
	}

	src := newSource(notify, handles, topic, obs)
	src.release = release
	return src, nil
}

func newSource(notify chan *opcua.PublishNotificationData, handles map[uint32]NodeConfig, topic string, obs ports.Observability) *Source {
	return &Source{
		notify:  notify,
		handles: handles,
		topic:   topic,
		obs:     obs,
		seq:     make(map[string]uint64),
		done:    make(chan struct{}),
	}
}

func (s *Source) Wait(ctx context.Context, timeout time.Duration) error {
	select {
	case <-s.done:
		return ErrSourceClosed
	default:
	}

	s.mu.Lock()
	ready := len(s.pending) > 0 || len(s.notify) > 0
	s.mu.Unlock()
	if ready {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case n, ok := <-s.notify:
		if !ok {
			return ErrSourceClosed
		}
		s.mu.Lock()
		s.pending = append(s.pending, n)
		s.mu.Unlock()
		return nil
	case <-s.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ports.ErrWaitTimeout
	}
}

func (s *Source) Drain() domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes := s.pending
	s.pending = nil
	for more := true; more; {
		select {
		case n, ok := <-s.notify:
			if !ok {
				more = false
				break
			}
			notes = append(notes, n)
		default:
			more = false
		}
	}

	var out domain.Batch
	now := time.Now()
	for _, n := range notes {
		out = s.appendNotification(out, n, now)
	}
	return out
}

func (s *Source) appendNotification(out domain.Batch, n *opcua.PublishNotificationData, now time.Time) domain.Batch {
	if n == nil {
		return out
	}
	if n.Error != nil {
		s.logError("opcua_notification_error", n.Error)
		return out
	}

	switch v := n.Value.(type) {
	case *ua.DataChangeNotification:
		for _, item := range v.MonitoredItems {
			if rec, ok := s.dataRecord(item, now); ok {
				out = append(out, rec)
			}
		}
	case *ua.StatusChangeNotification:
		s.logError("opcua_status_change", v.Status)
		out = append(out, domain.Record{
			Valid:         false,
			Topic:         s.topic,
			InstanceState: domain.StateNoWriters,
			ReceivedAt:    now,
		})
	}
	return out
}

// dataRecord converts one monitored item; seq is tracked per sensor.
func (s *Source) dataRecord(item *ua.MonitoredItemNotification, now time.Time) (domain.Record, bool) {
	if item == nil || item.Value == nil {
		return domain.Record{}, false
	}
	node, ok := s.handles[item.ClientHandle]
	if !ok {
		return domain.Record{}, false
	}
	if item.Value.Status != ua.StatusOK {
		return domain.Record{
			Valid:         false,
			Topic:         s.topic,
			InstanceState: domain.StateUnknown,
			WriterID:      node.NodeID,
			ReceivedAt:    now,
		}, true
	}
	fv, ok := variantToFloat(item.Value.Value)
	if !ok {
		var raw any
		if item.Value.Value != nil {
			raw = item.Value.Value.Value()
		}
		s.logError("opcua_unsupported_value", fmt.Errorf("node %s: unsupported type %T", node.NodeID, raw))
		return domain.Record{}, false
	}

	ts := item.Value.SourceTimestamp
	if ts.IsZero() {
		ts = item.Value.ServerTimestamp
	}
	if ts.IsZero() {
		ts = now
	}
	payload, err := domain.EncodeTemperature(domain.Temperature{
		SensorID:  node.SensorID,
		Degrees:   int32(math.Round(fv)),
		Timestamp: ts,
	})
	if err != nil {
		s.logError("opcua_encode_failed", err)
		return domain.Record{}, false
	}

	s.seq[node.SensorID]++
	return domain.Record{
		Valid:         true,
		Payload:       payload,
		Topic:         s.topic,
		InstanceState: domain.StateAlive,
		WriterID:      node.NodeID,
		Seq:           s.seq[node.SensorID],
		ReceivedAt:    now,
	}, true
}

func (s *Source) logError(msg string, err error) {
	if s.obs != nil {
		s.obs.LogError(msg, err, ports.Field{Key: "topic", Value: s.topic})
	}
}

// Close cancels the subscription and closes the client. Safe to call twice.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.release == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeErr = s.release(ctx)
	})
	return s.closeErr
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

var _ ports.EventSource = (*Source)(nil)
