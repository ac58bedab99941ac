package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PushMessage is published once per target device. The push gateway
// subscribed to the channel turns it into a platform notification.
type PushMessage struct {
	Event
	UserID    string `json:"user_id"`
	DeviceID  int64  `json:"device_id"`
	PushToken string `json:"push_token"`
}

type PushSink struct {
	client  redis.Cmdable
	channel string
	dir     Directory
}

// NewPushSink fails when Redis cannot be reached.
func NewPushSink(ctx context.Context, client redis.Cmdable, channel string, dir Directory) (*PushSink, error) {
	if channel == "" {
		return nil, errors.New("push channel is empty")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &PushSink{client: client, channel: channel, dir: dir}, nil
}

func (s *PushSink) Name() string { return "push" }

func (s *PushSink) Deliver(ctx context.Context, e Event) error {
	if len(e.TargetUserIDs) == 0 {
		return nil
	}

	devices, err := s.dir.Devices(ctx, e.TargetUserIDs)
	if err != nil {
		return fmt.Errorf("resolve devices: %w", err)
	}

	var errs []error
	for _, d := range devices {
		data, err := json.Marshal(PushMessage{Event: e, UserID: d.UserID, DeviceID: d.ID, PushToken: d.PushToken})
		if err != nil {
			return fmt.Errorf("marshal push message: %w", err)
		}
		if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
			errs = append(errs, fmt.Errorf("device %d: %w", d.ID, err))
		}
	}

	return errors.Join(errs...)
}
