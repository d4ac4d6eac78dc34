package store

import "context"

// EntityStore remembers extracted entities across turns. Writes are scoped to
// (bot, channel, user, key); reads resolve the latest value written for a
// (channel, key) pair regardless of which user produced it, which is what the
// response renderer needs for placeholder lookup.
type EntityStore interface {
	Get(ctx context.Context, channel, key string) (string, bool, error)
	Upsert(ctx context.Context, bot, channel, user, key, value string) error
}
