package progress

import (
	"fmt"
	"strings"
	"sync/atomic"
)

const counterWidth = 20

// Counter shows how many of a fixed number of items are complete.
type Counter struct {
	message string
	total   int
	current atomic.Int64
}

func NewCounter(message string, total int) *Counter {
	return &Counter{message: message, total: total}
}

func (c *Counter) Set(current int) {
	c.current.Store(int64(min(max(current, 0), c.total)))
}

func (c *Counter) String() string {
	current := int(c.current.Load())

	var percent float64
	filled := 0
	if c.total > 0 {
		percent = float64(current) / float64(c.total) * 100
		filled = current * counterWidth / c.total
	}

	// "models  50% ▕██████████          ▏ 17/34"
	return fmt.Sprintf("%s %3.0f%% ▕%s%s▏ %d/%d",
		c.message, percent,
		strings.Repeat("█", filled), strings.Repeat(" ", counterWidth-filled),
		current, c.total)
}
