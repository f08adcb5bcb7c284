package receiver

import (
	"fmt"
	"math"
	"time"

	"github.com/LoveWonYoung/vcimon/driver"
)

// 轮询配置
const (
	DefaultPollTimeout = 500 * time.Millisecond // 单次 VCI_Receive 的等待时间
	DefaultInterval    = 10 * time.Millisecond  // 两次轮询之间的固定休眠
	DefaultBatchSize   = 1                      // 每次最多取的帧数
	MaxBatchSize       = 100
)

// Config controls the polling cadence.
type Config struct {
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	BatchSize   int           `mapstructure:"batch_size" yaml:"batch_size"`
}

// DefaultConfig returns a 500ms receive wait, 10ms sleep and one frame per poll.
func DefaultConfig() Config {
	return Config{
		PollTimeout: DefaultPollTimeout,
		Interval:    DefaultInterval,
		BatchSize:   DefaultBatchSize,
	}
}

// Validate checks the configuration. BatchSize is kept well below the
// driver's timeout sentinel so a frame count can never be mistaken for it.
func (c *Config) Validate() error {
	if c.PollTimeout <= 0 || c.PollTimeout/time.Millisecond > math.MaxInt32 {
		return fmt.Errorf("receiver: poll timeout %v out of range", c.PollTimeout)
	}
	if c.Interval < 0 {
		return fmt.Errorf("receiver: negative interval %v", c.Interval)
	}
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize || int32(c.BatchSize) >= driver.ReceiveTimeout {
		return fmt.Errorf("receiver: batch size %d out of range [1,%d]", c.BatchSize, MaxBatchSize)
	}
	return nil
}
