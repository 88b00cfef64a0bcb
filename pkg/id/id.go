package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// 同一毫秒内生成的 ULID 保持单调递增
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New 生成 ULID（按时间可排序），用于流水类记录
func New() string {
	mu.Lock()
	defer mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), mono).String()
}

// NewStrategyID 生成策略 ID
func NewStrategyID() string {
	return uuid.NewString()
}
