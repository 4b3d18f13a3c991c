// Package activity listens for events which clients are interested in and
// broadcasts them, debounced so that a burst of events for one resource
// results in a single broadcast of that resource's latest state.
package activity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/scan"
	"github.com/hbomb79/Trove/pkg/logger"
)

var log = logger.Get("Activity")

const (
	DebounceDuration time.Duration = time.Second * 2
	MaxTimerDuration time.Duration = time.Second * 5

	RapidEventDebounceDuration time.Duration = time.Millisecond * 500
	RapidEventMaxTimerDuration time.Duration = time.Second * 2
)

type (
	broadcastHandler func(event.Payload) error

	Broadcaster interface {
		BroadcastTransferUpdate(uuid.UUID) error
		BroadcastTransferProgress(uuid.UUID) error
		BroadcastScanProgress(event.ScanProgress) error
		BroadcastProcessingProgress(event.ProcessingProgress) error
	}

	// Timings controls the debouncing of broadcasts. A broadcast happens once
	// no new event has arrived for the debounce duration, or once the max
	// duration has passed since the first unbroadcast event.
	Timings struct {
		Debounce      time.Duration
		Max           time.Duration
		RapidDebounce time.Duration
		RapidMax      time.Duration
	}

	eventKey struct {
		ev event.Event
		id string
	}

	pendingBroadcast struct {
		payload  event.Payload
		handler  broadcastHandler
		debounce *time.Timer
		max      *time.Timer
	}

	Service struct {
		mutex       sync.Mutex
		broadcaster Broadcaster
		eventBus    event.EventHandler
		timings     Timings
		pending     map[eventKey]*pendingBroadcast
	}
)

func DefaultTimings() Timings {
	return Timings{
		Debounce:      DebounceDuration,
		Max:           MaxTimerDuration,
		RapidDebounce: RapidEventDebounceDuration,
		RapidMax:      RapidEventMaxTimerDuration,
	}
}

func New(broadcaster Broadcaster, eventBus event.EventHandler, timings Timings) *Service {
	return &Service{
		broadcaster: broadcaster,
		eventBus:    eventBus,
		timings:     timings,
		pending:     make(map[eventKey]*pendingBroadcast),
	}
}

func (service *Service) Run(ctx context.Context) error {
	messageChan := make(chan event.HandlerEvent, 100)
	service.eventBus.RegisterHandlerChannel(messageChan,
		event.TransferUpdateEvent, event.TransferProgressEvent,
		event.ScanProgressEvent, event.ProcessingProgressEvent)

	log.Emit(logger.NEW, "Activity service started\n")
	for {
		select {
		case ev := <-messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			service.stopAll()
			log.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *Service) handleEvent(ev event.HandlerEvent) error {
	switch payload := ev.Payload.(type) {
	case uuid.UUID:
		key := eventKey{ev: ev.Event, id: payload.String()}
		switch ev.Event {
		case event.TransferUpdateEvent:
			service.scheduleEventBroadcast(key, payload, func(p event.Payload) error {
				return service.broadcaster.BroadcastTransferUpdate(p.(uuid.UUID))
			})
		case event.TransferProgressEvent:
			service.scheduleRapidEventBroadcast(key, payload, func(p event.Payload) error {
				return service.broadcaster.BroadcastTransferProgress(p.(uuid.UUID))
			})
		default:
			return errors.New("unknown event type")
		}
	case event.ScanProgress:
		key := eventKey{ev: ev.Event, id: payload.SessionID}
		handler := func(p event.Payload) error { return service.broadcaster.BroadcastScanProgress(p.(event.ScanProgress)) }
		if payload.State != string(scan.StateRunning) {
			service.broadcastNow(key, payload, handler)
		} else {
			service.scheduleRapidEventBroadcast(key, payload, handler)
		}
	case event.ProcessingProgress:
		key := eventKey{ev: ev.Event, id: payload.SessionID}
		handler := func(p event.Payload) error {
			return service.broadcaster.BroadcastProcessingProgress(p.(event.ProcessingProgress))
		}
		if payload.Done >= payload.Total {
			service.broadcastNow(key, payload, handler)
		} else {
			service.scheduleRapidEventBroadcast(key, payload, handler)
		}
	default:
		return errors.New("illegal payload")
	}

	return nil
}

func (service *Service) scheduleEventBroadcast(key eventKey, payload event.Payload, handler broadcastHandler) {
	service.schedule(key, payload, handler, service.timings.Debounce, service.timings.Max)
}

func (service *Service) scheduleRapidEventBroadcast(key eventKey, payload event.Payload, handler broadcastHandler) {
	service.schedule(key, payload, handler, service.timings.RapidDebounce, service.timings.RapidMax)
}

// schedule records the payload as the latest for the key, and (re)sets the
// debounce timer. The max timer is only set by the first event for the key.
func (service *Service) schedule(key eventKey, payload event.Payload, handler broadcastHandler, debounceTime time.Duration, maxTime time.Duration) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	broadcast := func() { service.broadcast(key) }

	p, ok := service.pending[key]
	if !ok {
		p = &pendingBroadcast{max: time.AfterFunc(maxTime, broadcast)}
		service.pending[key] = p
	}
	p.payload = payload
	p.handler = handler

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(debounceTime, broadcast)
}

// broadcastNow sends the payload immediately, replacing anything pending for
// the key. Used for the final event of a session so that it is never lost
// behind a debounce.
func (service *Service) broadcastNow(key eventKey, payload event.Payload, handler broadcastHandler) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	service.clear(key)
	if err := handler(payload); err != nil {
		log.Warnf("Broadcast of %v failed: %v\n", key, err)
	}
}

func (service *Service) broadcast(key eventKey) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	p, ok := service.pending[key]
	if !ok {
		return
	}

	service.clear(key)
	if err := p.handler(p.payload); err != nil {
		log.Warnf("Broadcast of %v failed: %v\n", key, err)
	}
}

// clear stops and removes the timers for the key. Caller must hold the mutex.
func (service *Service) clear(key eventKey) {
	if p, ok := service.pending[key]; ok {
		if p.debounce != nil {
			p.debounce.Stop()
		}
		p.max.Stop()
		delete(service.pending, key)
	}
}

func (service *Service) stopAll() {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	for key := range service.pending {
		service.clear(key)
	}
}
