package lock

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/franchisefund/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// New always serializes in-process and adds the redis lock when configured.
func New(p Params) Locker {
	local := NewKeyedMutex()
	if p.Redis == nil {
		return local
	}
	return Chain{local, NewRedisLocker(p.Redis, p.Cfg.Redis.LockTTL, p.Log.Named("lock.redis"))}
}

var Module = fx.Module("lock",
	fx.Provide(New),
)
