package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-rrd/internal/catalog"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

// EventUpdated is the WebSocket channel for applied updates.
const EventUpdated = "rrd.updated"

// defaultApplyTimeout bounds one MQTT-triggered update, queue wait included.
const defaultApplyTimeout = 30 * time.Second

// Store writes samples. *rrdtool.Manager satisfies it.
type Store interface {
	Update(ctx context.Context, name string, values map[string]float64, opts rrdtool.UpdateOptions) (rrdtool.UpdateResult, error)
}

// Broker is the MQTT surface the service needs. *mqtt.Client satisfies it.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any) error
	QoS() byte
}

// Notifier receives events for WebSocket clients.
type Notifier interface {
	Broadcast(channel string, payload any)
}

// SampleWriter mirrors raw samples to a time-series store.
type SampleWriter interface {
	WriteSample(name string, timestamp int64, values map[string]float64)
}

// Logger is the logging surface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the collaborators of a Service. Only Store is required.
type Deps struct {
	Store Store

	// Catalog records applied updates. Source, when set, lets the service
	// register files that were created outside rrdcore.
	Catalog catalog.Repository
	Source  catalog.Source

	Broker   Broker
	Notifier Notifier
	Samples  SampleWriter
	Logger   Logger

	// Timeout bounds each MQTT-triggered update. Zero uses 30 seconds.
	Timeout time.Duration
}

// Request is one sample to apply.
type Request struct {
	Name string `json:"-"`

	// Timestamp of the sample. Zero means now.
	Timestamp int64 `json:"timestamp,omitempty"`

	// Values by data source. NaN (JSON null) is written as unknown.
	Values map[string]rrdtool.Float `json:"values"`

	SkipPastUpdates bool `json:"skip_past_updates,omitempty"`
}

// Event describes an applied update. It is published to MQTT and broadcast
// to WebSocket clients.
type Event struct {
	Name      string                   `json:"name"`
	Timestamp int64                    `json:"timestamp"`
	Values    map[string]rrdtool.Float `json:"values"`
	Source    string                   `json:"source"`
}

// errorEvent is published on rrdcore/error/{name}.
type errorEvent struct {
	Name      string `json:"name"`
	Error     string `json:"error"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// Service applies updates and fans out their results.
type Service struct {
	store    Store
	catalog  catalog.Repository
	source   catalog.Source
	broker   Broker
	notifier Notifier
	samples  SampleWriter
	logger   Logger
	timeout  time.Duration
	topics   mqtt.Topics
}

// New creates a Service.
//
// Returns:
//   - *Service: ready to Apply; call Start to consume MQTT updates
//   - error: ErrMissingStore if deps.Store is nil
func New(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, ErrMissingStore
	}
	s := &Service{
		store:    deps.Store,
		catalog:  deps.Catalog,
		source:   deps.Source,
		broker:   deps.Broker,
		notifier: deps.Notifier,
		samples:  deps.Samples,
		logger:   deps.Logger,
		timeout:  deps.Timeout,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.timeout <= 0 {
		s.timeout = defaultApplyTimeout
	}
	return s, nil
}

// Start subscribes to rrdcore/update/+. It is a no-op without a Broker.
func (s *Service) Start() error {
	if s.broker == nil {
		return nil
	}
	topic := s.topics.AllUpdates()
	s.logger.Info("subscribing to update requests", "topic", topic)
	if err := s.broker.Subscribe(topic, s.broker.QoS(), s.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

// Stop unsubscribes from update requests.
func (s *Service) Stop() error {
	if s.broker == nil {
		return nil
	}
	return s.broker.Unsubscribe(s.topics.AllUpdates())
}

// HandleMessage decodes an MQTT update request and applies it.
// It matches mqtt.MessageHandler; returned errors are logged by the client.
func (s *Service) HandleMessage(topic string, payload []byte) error {
	name, ok := s.topics.UpdateName(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	req, err := DecodeRequest(payload)
	if err != nil {
		s.publishError(name, catalog.SourceMQTT, err)
		return err
	}
	req.Name = name

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err = s.Apply(ctx, req, catalog.SourceMQTT)
	return err
}

// DecodeRequest parses an update payload.
func DecodeRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if len(req.Values) == 0 {
		return Request{}, fmt.Errorf("%w: no values", ErrInvalidMessage)
	}
	if req.Timestamp < 0 {
		return Request{}, fmt.Errorf("%w: negative timestamp", ErrInvalidMessage)
	}
	return req, nil
}

// Apply writes one sample and fans out the result.
//
// Failures of the write itself are returned and published on the error
// topic. Catalog, MQTT, WebSocket and InfluxDB failures after a successful
// write are logged only.
//
// Parameters:
//   - ctx: bounds the wait for the file's queue and the rrdtool run
//   - req: the sample
//   - source: catalog.SourceMQTT, SourceAPI or SourceCLI
//
// Returns:
//   - Event: what was applied
//   - error: rrdtool errors (ErrNotFound, *UnknownDataSourceError, *process.ExitError, ...)
func (s *Service) Apply(ctx context.Context, req Request, source string) (Event, error) {
	values := make(map[string]float64, len(req.Values))
	for k, v := range req.Values {
		values[k] = float64(v)
	}

	opts := rrdtool.UpdateOptions{
		Timestamp:       req.Timestamp,
		SkipPastUpdates: req.SkipPastUpdates,
	}
	if _, err := s.store.Update(ctx, req.Name, values, opts); err != nil {
		s.publishError(req.Name, source, err)
		return Event{}, err
	}

	ts := req.Timestamp
	if ts == 0 {
		ts = rrdtool.Now()
	}
	ev := Event{Name: req.Name, Timestamp: ts, Values: req.Values, Source: source}
	s.logger.Debug("update applied", "name", req.Name, "timestamp", ts, "source", source)

	s.record(ctx, ev)
	if s.broker != nil {
		if err := s.broker.PublishJSON(s.topics.Updated(req.Name), ev); err != nil {
			s.logger.Warn("publishing update event failed", "name", req.Name, "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.Broadcast(EventUpdated, ev)
	}
	if s.samples != nil {
		s.samples.WriteSample(req.Name, ts, knownValues(values))
	}
	return ev, nil
}

// record stores the update in the catalog, registering the file first if
// the catalog has not seen it.
func (s *Service) record(ctx context.Context, ev Event) {
	if s.catalog == nil {
		return
	}
	err := s.writeRecord(ctx, ev)
	if errors.Is(err, catalog.ErrNotFound) && s.source != nil {
		if _, regErr := catalog.Register(ctx, s.catalog, s.source, ev.Name); regErr != nil {
			s.logger.Warn("registering file in catalog failed", "name", ev.Name, "error", regErr)
			return
		}
		err = s.writeRecord(ctx, ev)
	}
	if err != nil {
		s.logger.Warn("recording update failed", "name", ev.Name, "error", err)
	}
}

func (s *Service) writeRecord(ctx context.Context, ev Event) error {
	if err := s.catalog.SetLastUpdate(ctx, ev.Name, ev.Timestamp); err != nil {
		return err
	}
	return s.catalog.RecordUpdate(ctx, &catalog.UpdateRecord{
		Name:      ev.Name,
		Timestamp: ev.Timestamp,
		Values:    ev.Values,
		Source:    ev.Source,
	})
}

func (s *Service) publishError(name, source string, cause error) {
	if s.broker == nil {
		return
	}
	ev := errorEvent{Name: name, Error: cause.Error(), Source: source, Timestamp: rrdtool.Now()}
	if err := s.broker.PublishJSON(s.topics.Error(name), ev); err != nil {
		s.logger.Warn("publishing update error failed", "name", name, "error", err)
	}
}

func knownValues(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		if !math.IsNaN(v) {
			out[k] = v
		}
	}
	return out
}
