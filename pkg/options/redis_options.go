package options

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

var _ IOptions = (*RedisOptions)(nil)

// RedisOptions configures the Redis Streams messaging backend.
type RedisOptions struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`

	DialTimeout time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	// Block bounds a single XREADGROUP wait so cancellation is noticed.
	Block time.Duration `json:"block" mapstructure:"block"`
	// MaxLen caps every stream with approximate trimming. Zero disables trimming.
	MaxLen int64 `json:"max-len" mapstructure:"max-len"`
	// StreamPrefix is prepended to each topic to build the stream key.
	StreamPrefix string `json:"stream-prefix" mapstructure:"stream-prefix"`
}

func NewRedisOptions() *RedisOptions {
	return &RedisOptions{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  5 * time.Second,
		Block:        2 * time.Second,
		MaxLen:       100000,
		StreamPrefix: "syncpeer:",
	}
}

func (o *RedisOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.Addr == "" {
		errs = append(errs, errors.New("--redis.addr must not be empty"))
	}
	if o.Block <= 0 {
		errs = append(errs, errors.New("--redis.block must be positive"))
	}
	return errs
}

func (o *RedisOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, join(prefixes, "redis.addr"), o.Addr, "Redis server address (host:port).")
	fs.StringVar(&o.Username, join(prefixes, "redis.username"), o.Username, "Redis ACL username.")
	fs.StringVar(&o.Password, join(prefixes, "redis.password"), o.Password, "Redis password.")
	fs.IntVar(&o.DB, join(prefixes, "redis.db"), o.DB, "Redis database number.")
	fs.DurationVar(&o.DialTimeout, join(prefixes, "redis.dial-timeout"), o.DialTimeout, "Timeout for establishing a Redis connection.")
	fs.DurationVar(&o.Block, join(prefixes, "redis.block"), o.Block, "Maximum time a stream read blocks before re-checking for shutdown.")
	fs.Int64Var(&o.MaxLen, join(prefixes, "redis.max-len"), o.MaxLen, "Approximate maximum stream length (0 disables trimming).")
	fs.StringVar(&o.StreamPrefix, join(prefixes, "redis.stream-prefix"), o.StreamPrefix, "Prefix for stream keys.")
}

// ToRedisOptions converts to the go-redis client configuration.
func (o *RedisOptions) ToRedisOptions() *redis.Options {
	return &redis.Options{
		Addr:        o.Addr,
		Username:    o.Username,
		Password:    o.Password,
		DB:          o.DB,
		DialTimeout: o.DialTimeout,
	}
}
