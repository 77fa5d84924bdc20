package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PipelineEvent represents one pipeline occurrence
type PipelineEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	Source         string                 `json:"source"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of pipeline event
type EventType string

const (
	// OptimizationStarted when an optimize call begins pipeline work
	OptimizationStarted EventType = "optimization_started"
	// OptimizationCompleted when a transformation finishes successfully
	OptimizationCompleted EventType = "optimization_completed"
	// OptimizationFailed when a transformation fails
	OptimizationFailed EventType = "optimization_failed"
	// CacheHit when the hierarchy answers from a tier
	CacheHit EventType = "cache_hit"
	// CacheMiss when every tier misses
	CacheMiss EventType = "cache_miss"
	// WorkerReplaced when a crashed worker slot is respawned
	WorkerReplaced EventType = "worker_replaced"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event PipelineEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event PipelineEvent)
}

// LoggingObserver logs pipeline events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{logger: logger}
}

// OnEvent logs the event with structured fields
func (o *LoggingObserver) OnEvent(_ context.Context, event PipelineEvent) {
	entry := o.logger.WithFields(logrus.Fields{
		"event_type": event.EventType,
		"source":     event.Source,
		"success":    event.Success,
	})
	if event.ProcessingTime > 0 {
		entry = entry.WithField("processing_ms", float64(event.ProcessingTime.Microseconds())/1000)
	}
	for k, v := range event.Metadata {
		entry = entry.WithField(k, v)
	}

	switch event.EventType {
	case OptimizationFailed:
		entry.WithField("error", event.ErrorMessage).Error("Pipeline event")
	case WorkerReplaced:
		entry.Warn("Pipeline event")
	default:
		entry.Debug("Pipeline event")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// EventPublisher is the default Subject implementation
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{}
}

// Subscribe registers an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer by name
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, o := range p.observers {
		if o.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			return
		}
	}
}

// NotifyObservers delivers the event to every subscriber
func (p *EventPublisher) NotifyObservers(ctx context.Context, event PipelineEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, o := range observers {
		o.OnEvent(ctx, event)
	}
}
