package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlotsPubSub broadcasts availability changes so other instances and
// interested consumers can drop their cached slot listings.
type SlotsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewSlotsPubSub(rdb *redis.Client) *SlotsPubSub {
	return &SlotsPubSub{
		rdb:     rdb,
		channel: ChannelSlotsChanged(),
	}
}

type slotsChangedMsg struct {
	Type         string    `json:"type"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Date         string    `json:"date"`
	TsUnix       int64     `json:"ts_unix"`
}

func (p *SlotsPubSub) PublishSlotsChanged(ctx context.Context, restaurantID uuid.UUID, date string) error {
	msg := slotsChangedMsg{
		Type:         "slots_changed",
		RestaurantID: restaurantID,
		Date:         date,
		TsUnix:       time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *SlotsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, restaurantID uuid.UUID, date string)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev slotsChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.RestaurantID != uuid.Nil {
				handler(ctx, ev.RestaurantID, ev.Date)
			}
		}
	}
}
