// Package id는 시간순 정렬이 가능한 ULID 문자열을 생성합니다.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// 같은 밀리초 안에서도 증가하는 ID를 보장
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New는 현재 시각 기준 ULID를 반환합니다
func New() string {
	return At(time.Now())
}

// At은 주어진 시각 기준 ULID를 반환합니다
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}

// Time은 ULID에 기록된 시각을 반환합니다
func Time(s string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
