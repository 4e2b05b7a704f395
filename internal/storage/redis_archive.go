package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"solochat/internal/redis"
)

// RedisArchive stores the snapshot as a plain string value under
// SnapshotKey, with no expiry.
type RedisArchive struct {
	client *redis.Client
}

func NewRedisArchive(client *redis.Client) *RedisArchive {
	return &RedisArchive{client: client}
}

func (a *RedisArchive) Load(ctx context.Context) *Snapshot {
	payload, err := a.client.Get(ctx, SnapshotKey)
	if err != nil {
		if !errors.Is(err, redis.ErrKeyMiss) {
			log.Printf("storage: load snapshot from redis: %v", err)
		}
		return &Snapshot{}
	}
	return decodeSnapshot([]byte(payload))
}

func (a *RedisArchive) Save(ctx context.Context, snap *Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("storage: encode snapshot: %v", err)
		return
	}
	if err := a.client.Set(ctx, SnapshotKey, string(payload), 0); err != nil {
		log.Printf("storage: save snapshot to redis: %v", err)
	}
}
