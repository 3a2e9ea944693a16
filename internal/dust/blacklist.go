package dust

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/assist-by/fleetguard/internal/atomicfile"
	"github.com/assist-by/fleetguard/internal/domain"
)

// ReasonBelowThreshold는 먼지 기준 금액 미만으로 자동 등록될 때의 사유입니다
const ReasonBelowThreshold = "below dust threshold"

// fileFormat은 블랙리스트 파일 형식입니다
type fileFormat struct {
	Symbols     []string                             `json:"symbols"`
	Reasons     map[string]string                    `json:"reasons"`
	Entries     map[string]domain.DustBlacklistEntry `json:"entries,omitempty"`
	LastUpdated time.Time                            `json:"last_updated"`
}

// Blacklist는 한 계정에서 포지션 수 계산에서 영구히 제외되는 심볼 목록입니다.
// 계정마다 파일이 따로 있으며, 운영자 CLI가 같은 파일을 고칠 수 있어 쓰기 전에 다시 읽습니다.
type Blacklist struct {
	path    string
	mu      sync.RWMutex
	entries map[string]domain.DustBlacklistEntry
	modTime time.Time
}

// Open은 path의 블랙리스트를 읽어옵니다. 파일이 없으면 빈 목록으로 시작합니다.
func Open(path string) (*Blacklist, error) {
	b := &Blacklist{
		path:    path,
		entries: make(map[string]domain.DustBlacklistEntry),
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

// Path는 dir 아래 계정의 블랙리스트 파일 경로를 반환합니다
func Path(dir, accountID string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(accountID)
	return filepath.Join(dir, name+".json")
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// load는 파일 내용을 메모리로 읽습니다. 호출자가 쓰기 잠금을 가지고 있어야 합니다.
func (b *Blacklist) load() error {
	var f fileFormat
	found, err := atomicfile.ReadJSON(b.path, &f)
	if err != nil {
		if !errors.Is(err, atomicfile.ErrCorrupted) {
			return fmt.Errorf("블랙리스트 읽기 실패: %w", err)
		}
		dst, qErr := atomicfile.Quarantine(b.path)
		if qErr != nil {
			return qErr
		}
		log.Printf("손상된 먼지 블랙리스트를 %s로 옮기고 빈 목록으로 시작합니다: %v", dst, err)
		b.entries = make(map[string]domain.DustBlacklistEntry)
		b.modTime = time.Time{}
		return nil
	}

	entries := make(map[string]domain.DustBlacklistEntry)
	if found {
		for _, symbol := range f.Symbols {
			key := normalize(symbol)
			entry, ok := f.Entries[symbol]
			if !ok {
				entry = domain.DustBlacklistEntry{Reason: f.Reasons[symbol], BlacklistedAt: f.LastUpdated}
			}
			entry.Symbol = key
			entries[key] = entry
		}
		if info, err := os.Stat(b.path); err == nil {
			b.modTime = info.ModTime()
		}
	}
	b.entries = entries
	return nil
}

// save는 현재 목록을 원자적으로 저장합니다. 호출자가 쓰기 잠금을 가지고 있어야 합니다.
func (b *Blacklist) save() error {
	f := fileFormat{
		Symbols:     make([]string, 0, len(b.entries)),
		Reasons:     make(map[string]string, len(b.entries)),
		Entries:     make(map[string]domain.DustBlacklistEntry, len(b.entries)),
		LastUpdated: time.Now().UTC(),
	}
	for symbol, entry := range b.entries {
		f.Symbols = append(f.Symbols, symbol)
		f.Reasons[symbol] = entry.Reason
		f.Entries[symbol] = entry
	}
	sort.Strings(f.Symbols)

	if err := atomicfile.WriteJSON(b.path, f); err != nil {
		return fmt.Errorf("블랙리스트 저장 실패: %w", err)
	}
	if info, err := os.Stat(b.path); err == nil {
		b.modTime = info.ModTime()
	}
	return nil
}

// Refresh는 다른 프로세스(운영자 CLI 등)가 파일을 바꿨으면 다시 읽습니다
func (b *Blacklist) Refresh() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshLocked()
}

// refreshLocked는 파일 수정 시각이 바뀌었으면 다시 읽습니다. 호출자가 쓰기 잠금을 가지고 있어야 합니다.
func (b *Blacklist) refreshLocked() error {
	info, err := os.Stat(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !b.modTime.IsZero() {
				// 저장한 적 있는 파일이 지워졌으면 빈 목록입니다
				b.entries = make(map[string]domain.DustBlacklistEntry)
				b.modTime = time.Time{}
			}
			return nil
		}
		return fmt.Errorf("블랙리스트 상태 확인 실패: %w", err)
	}
	if info.ModTime().Equal(b.modTime) {
		return nil
	}
	return b.load()
}

// Contains는 심볼이 블랙리스트에 있는지 확인합니다
func (b *Blacklist) Contains(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[normalize(symbol)]
	return ok
}

// Add는 심볼을 블랙리스트에 추가하고 저장합니다. 이미 있으면 false를 반환합니다.
func (b *Blacklist) Add(entry domain.DustBlacklistEntry) (bool, error) {
	key := normalize(entry.Symbol)
	if key == "" {
		return false, fmt.Errorf("빈 심볼은 블랙리스트에 추가할 수 없습니다")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.refreshLocked(); err != nil {
		return false, err
	}
	if _, exists := b.entries[key]; exists {
		return false, nil
	}
	entry.Symbol = key
	if entry.BlacklistedAt.IsZero() {
		entry.BlacklistedAt = time.Now().UTC()
	}
	b.entries[key] = entry

	if err := b.save(); err != nil {
		delete(b.entries, key)
		return false, err
	}
	return true, nil
}

// Remove는 운영자 요청으로 심볼을 블랙리스트에서 제거합니다
func (b *Blacklist) Remove(symbol string) (bool, error) {
	key := normalize(symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.refreshLocked(); err != nil {
		return false, err
	}
	entry, exists := b.entries[key]
	if !exists {
		return false, nil
	}
	delete(b.entries, key)

	if err := b.save(); err != nil {
		b.entries[key] = entry
		return false, err
	}
	return true, nil
}

// Entries는 등록된 항목을 심볼 순으로 반환합니다
func (b *Blacklist) Entries() []domain.DustBlacklistEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.DustBlacklistEntry, 0, len(b.entries))
	for _, entry := range b.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len은 등록된 심볼 수를 반환합니다
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
