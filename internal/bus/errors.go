package bus

import "errors"

// ErrChannelFull is returned when the internal broadcast queue is full;
// the triggering event is dropped rather than blocking the publisher.
var ErrChannelFull = errors.New("bus: event channel full")

// ErrSubscriberClosed is returned by Send on a subscriber that already
// closed its connection.
var ErrSubscriberClosed = errors.New("bus: subscriber closed")
