package config

import (
	"time"
)

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func defaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Enabled:      true,
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func applyRedisEnv(c *RedisConfig) {
	c.Enabled = getEnvAsBool("REDIS_ENABLED", c.Enabled)
	c.Host = getEnv("REDIS_HOST", c.Host)
	c.Port = getEnvAsInt("REDIS_PORT", c.Port)
	c.Password = getEnv("REDIS_PASSWORD", c.Password)
	c.DB = getEnvAsInt("REDIS_DB", c.DB)
	c.PoolSize = getEnvAsInt("REDIS_POOL_SIZE", c.PoolSize)
	c.MinIdleConns = getEnvAsInt("REDIS_MIN_IDLE_CONNS", c.MinIdleConns)
	c.DialTimeout = getEnvAsDuration("REDIS_DIAL_TIMEOUT", c.DialTimeout)
	c.ReadTimeout = getEnvAsDuration("REDIS_READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvAsDuration("REDIS_WRITE_TIMEOUT", c.WriteTimeout)
}
