// A collection of event names and common methods used to handle the events, typically
// redirecting the handling to a service method or other method via the `Handler` interface.
package event

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/pkg/logger"
)

var log = logger.Get("EventBus")

// Events emitted by various parts of Trove that should be handled by another, silo'd part
// of the architecture. Each event has exactly one accepted payload type, which is
// checked before the event reaches any handler.
type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	// ScanProgress is the payload of ScanProgressEvent: the coarse enumeration
	// progress of a single scan session.
	ScanProgress struct {
		SessionID string `json:"session_id"`
		Enqueued  int    `json:"enqueued"`
		Total     int    `json:"total"`
		State     string `json:"state"`
	}

	// ProcessingProgress is the payload of ProcessingProgressEvent, a snapshot
	// of the progress counters for a session taken after a processor reported.
	ProcessingProgress struct {
		SessionID string `json:"session_id"`
		Total     int64  `json:"total"`
		Done      int64  `json:"done"`
		Failed    int64  `json:"failed"`
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		mutex        sync.RWMutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	TransferUpdateEvent   Event = "transfer:update"
	TransferProgressEvent Event = "transfer:update:progress"

	FileFinalizedEvent Event = "file:finalized"
	FileProcessedEvent Event = "file:processed"

	ScanProgressEvent       Event = "scan:progress"
	ProcessingProgressEvent Event = "processing:progress"
	SessionCancelledEvent   Event = "session:cancelled"
)

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send Event messages on
// the channel any time a Dispatch for the provided event occurs.
// This method can be used multiple times for different events on the same channel.
//
// If the channel is BLOCKED when the event bus attempts to send the message on the handler channel,
// then the thread dispatching the event will also be BLOCKED. It is recomended to buffer the handler channels
// appropiately to avoid dispatcher-side blocking.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()

	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction takes an event type and a handler method which will be stored
// and called with the payload for the event whenever it is dispatched.
// The handle provided should be guaranteed to return quickly, else other threads calling
// Dispatch on this event bus will be blocked.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction accepts an Event and a HandlerMethod which will be stored and
// called inside of a goroutine when the event is handled.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()

	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch takes an event type and a payload and dispatches the payload to the handlers
// registered for the event type provided.
// Note that this method WILL block if a synchronous handler function is blocking, or if channel
// handlers are blocked.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := validatePayload(event, payload); err != nil {
		log.Emit(logger.ERROR, "Dispatch for event %v FAILED validation: %v\n", event, err)
		return
	}

	handler.mutex.RLock()
	fnHandles := handler.fnHandlers[event]
	chanHandles := handler.chanHandlers[event]
	handler.mutex.RUnlock()

	for _, handle := range fnHandles {
		if handle.async {
			go handle.handle(event, payload)
		} else {
			handle.handle(event, payload)
		}
	}

	message := HandlerEvent{event, payload}
	for _, handle := range chanHandles {
		handle <- message
	}
}

// validatePayload ensures that the payload provided is valid for the event specified. An error
// will be returned if the payload is not valid, and the event should not be sent to the registered
// handlers in this case.
func validatePayload(event Event, payload Payload) error {
	var payloadTypeName string
	if t := reflect.TypeOf(payload); t != nil {
		payloadTypeName = t.Name()
	} else {
		payloadTypeName = "Nil"
	}

	illegal := func(expected string) error {
		return fmt.Errorf("illegal payload (type %s) for %s event. Expected %s payload", payloadTypeName, event, expected)
	}

	switch event {
	case TransferUpdateEvent, TransferProgressEvent, FileFinalizedEvent, FileProcessedEvent:
		if _, ok := payload.(uuid.UUID); !ok {
			return illegal("uuid.UUID")
		}
	case ScanProgressEvent:
		if _, ok := payload.(ScanProgress); !ok {
			return illegal("event.ScanProgress")
		}
	case ProcessingProgressEvent:
		if _, ok := payload.(ProcessingProgress); !ok {
			return illegal("event.ProcessingProgress")
		}
	case SessionCancelledEvent:
		if _, ok := payload.(string); !ok {
			return illegal("string")
		}
	default:
		return errors.New("event type not recognized for validation")
	}

	return nil
}
