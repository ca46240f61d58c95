// Package director 负责每个 step 的打断裁决：
// 先由 Evaluator 给每条弹幕打分，再由 Scheduler 结合当前台词的阻力选出至多一条弹幕和叙事动作。
package director

import (
	"math/rand"
	"time"
)

// RandSource 可注入的随机源。
// “随机注意力”和“临时起意”两个加成都从这里取数，测试里换成固定序列即可复现裁决。
type RandSource interface {
	Float64() float64
}

// NewRand 创建一个独立的随机源；seed 为 0 时按当前时间播种。
// 每个直播间各持有一个，不跨 goroutine 共享。
func NewRand(seed uint64) RandSource {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewSource(int64(seed)))
}

// Config 裁决参数。
type Config struct {
	// SpontaneousChance 随机注意力加成的触发概率。
	SpontaneousChance float64
	// SpontaneousBonus 随机注意力加成的分值。
	SpontaneousBonus float64
	// WhimChance 优先级不足时仍临时起意打断的概率。
	WhimChance float64
	// CostFactor 台词阻力的折算系数。
	CostFactor float64
}

// DefaultConfig 返回默认裁决参数。
func DefaultConfig() Config {
	return Config{
		SpontaneousChance: 0.2,
		SpontaneousBonus:  0.3,
		WhimChance:        0.15,
		CostFactor:        0.7,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SpontaneousChance == 0 && c.SpontaneousBonus == 0 && c.WhimChance == 0 && c.CostFactor == 0 {
		return def
	}
	if c.CostFactor == 0 {
		c.CostFactor = def.CostFactor
	}
	return c
}
