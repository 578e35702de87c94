package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/appgen/internal/common"
)

type Store struct {
	rdb     *redis.Client
	lockTTL time.Duration
}

func New(addr, password string, db int, lockTTL time.Duration) *Store {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		lockTTL: lockTTL,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func streamLockKey(chatID string) string {
	return "appgen:stream_lock:" + chatID
}

// release only if the caller still owns the lock
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock takes the per-chat stream lock. ok is false when another stream
// holds it. The lock expires after the configured TTL so a crashed server
// cannot wedge a chat.
func (s *Store) TryLock(ctx context.Context, chatID string) (token string, ok bool, err error) {
	token, err = common.NewULID()
	if err != nil {
		return "", false, err
	}
	ok, err = s.rdb.SetNX(ctx, streamLockKey(chatID), token, s.lockTTL).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (s *Store) Unlock(ctx context.Context, chatID, token string) error {
	return unlockScript.Run(ctx, s.rdb, []string{streamLockKey(chatID)}, token).Err()
}
