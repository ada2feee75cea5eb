package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法编号生成器
// ============================================================================
//
// 流水号、产品编号、消息 key 都由这里生成，要求全局唯一且趋势递增。
//
//   0 - 41位毫秒时间戳 - 10位节点ID - 12位序列号
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	nodeIDBits     = 10
	sequenceBits   = 12
	maxNodeID      = -1 ^ (-1 << nodeIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	nodeIDShift    = sequenceBits
	timestampShift = sequenceBits + nodeIDBits
)

const (
	PrefixFlow    = "FLW"
	PrefixProduct = "PRD"
	PrefixMessage = "MSG"
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	nodeID    int64
	sequence  int64
	now       func() time.Time
}

// NewSnowflake 创建生成器，nodeID 取值 0-1023
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("nodeID 必须在 0-%d 之间", maxNodeID)
	}
	return &Snowflake{nodeID: nodeID, now: time.Now}, nil
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init 初始化默认生成器，只有第一次调用生效
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewSnowflake(nodeID)
	})
	return err
}

// NextID 未显式初始化时使用节点 1
func NextID() int64 {
	_ = Init(1)
	return defaultGenerator.Generate()
}

// Generate 生成下一个ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 当前毫秒序列号用尽，自旋到下一毫秒
			for now <= s.timestamp {
				now = s.now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.nodeID << nodeIDShift) |
		s.sequence
}

// GenerateNo 生成带业务前缀的编号
// 格式：前缀 + 年月日时分秒 + 雪花ID后8位，例如 FLW2024011514305212345678
func GenerateNo(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%08d", prefix, time.Now().Format("20060102150405"), id%100000000)
}

func GenerateFlowNo() string {
	return GenerateNo(PrefixFlow)
}

func GenerateProductNo() string {
	return GenerateNo(PrefixProduct)
}

func GenerateMessageKey() string {
	return GenerateNo(PrefixMessage)
}
