package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/genledger/internal/core/domain"
)

const (
	eventStream = "genledger:job_events"

	// maxStreamLen caps the stream so slow consumers cannot grow it
	// without bound.
	maxStreamLen = 100000
)

// PublishJobEvent appends a job lifecycle event to the event stream.
func (c *Client) PublishJobEvent(ctx context.Context, event *domain.JobEvent) error {
	values := map[string]interface{}{
		"type":         string(event.Type),
		"job_id":       event.JobID,
		"account_id":   event.AccountID,
		"kind":         string(event.Kind),
		"credits_cost": event.CreditsCost,
		"timestamp":    event.Timestamp.UnixMilli(),
	}
	if event.ErrorCode != "" {
		values["error_code"] = event.ErrorCode
	}

	err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd job event: %w", err)
	}
	return nil
}
