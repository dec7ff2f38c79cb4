// Package notify queues transient user-facing notifications per session.
package notify

import (
	"fmt"
	"time"

	"github.com/ridemap/ridemap/internal/queue"
	"github.com/ridemap/ridemap/pkg/core"
)

// DefaultDelay is how long a notification stays visible.
const DefaultDelay = 5 * time.Second

// DefaultCapacity bounds the pending notifications of one session.
const DefaultCapacity = 32

// PublishFunc receives every notification as it is raised.
type PublishFunc func(core.Notification)

// Center holds the pending notifications of one session.
type Center struct {
	pending *queue.Queue[core.Notification]
	delay   time.Duration
	publish PublishFunc
	now     func() time.Time
}

// NewCenter creates a center. A nil publish func is allowed.
func NewCenter(delay time.Duration, publish PublishFunc) *Center {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Center{
		pending: queue.NewBounded[core.Notification](DefaultCapacity),
		delay:   delay,
		publish: publish,
		now:     time.Now,
	}
}

// Success raises a success notification.
func (c *Center) Success(format string, args ...any) core.Notification {
	return c.raise(core.NotifySuccess, fmt.Sprintf(format, args...))
}

// Error raises an error notification.
func (c *Center) Error(format string, args ...any) core.Notification {
	return c.raise(core.NotifyError, fmt.Sprintf(format, args...))
}

func (c *Center) raise(level core.NotificationLevel, msg string) core.Notification {
	now := c.now()
	n := core.Notification{
		Level:     level,
		Message:   msg,
		CreatedAt: now,
		ExpiresAt: now.Add(c.delay),
	}
	c.pending.Push(n)
	if c.publish != nil {
		c.publish(n)
	}
	return n
}

// Drain returns the notifications still visible at now and empties the queue.
func (c *Center) Drain(now time.Time) []core.Notification {
	c.pending.Retain(func(n core.Notification) bool { return !n.Expired(now) })
	return c.pending.GetAndEmpty()
}

// Dropped returns how many notifications overflowed the queue.
func (c *Center) Dropped() int {
	return c.pending.Dropped()
}
