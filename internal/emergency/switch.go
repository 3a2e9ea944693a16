// Package emergency는 운영자가 모든 계정의 포지션을 청산하도록 지시하는 센티널 파일 스위치를 제공합니다.
package emergency

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/assist-by/fleetguard/internal/atomicfile"
	"github.com/assist-by/fleetguard/internal/id"
)

// sentinel은 센티널 파일 내용입니다. 운영자가 빈 파일을 만들어도 동작합니다.
type sentinel struct {
	Token       string    `json:"token"`
	Reason      string    `json:"reason"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Mode는 한 사이클 동안 유지되는 스위치 상태입니다
type Mode struct {
	Liquidate   bool
	Token       string
	Reason      string
	TriggeredAt time.Time
}

// Switch는 센티널 파일 기반 긴급 청산 스위치입니다.
// 등록된 모든 계정이 같은 토큰에 대해 청산을 마쳤다고 알려야 센티널을 지웁니다.
type Switch struct {
	path string

	mu         sync.Mutex
	registered map[string]bool
	acks       map[string]string // 계정 ID -> 청산을 마친 토큰
}

// New는 path를 센티널로 사용하는 스위치를 생성합니다
func New(path string) *Switch {
	return &Switch{
		path:       path,
		registered: make(map[string]bool),
		acks:       make(map[string]string),
	}
}

// Path는 센티널 파일 경로를 반환합니다
func (s *Switch) Path() string {
	return s.path
}

// Register는 청산 완료를 기다릴 계정을 등록합니다
func (s *Switch) Register(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered[accountID] = true
}

// Unregister는 더 이상 사이클을 돌지 않는 계정을 제외합니다.
// 남은 계정이 모두 청산을 마친 상태라면 센티널을 지웁니다.
func (s *Switch) Unregister(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.registered, accountID)
	delete(s.acks, accountID)

	mode, err := s.read()
	if err != nil || !mode.Liquidate || len(s.acks) == 0 {
		return err
	}
	_, err = s.clearIfCompleteLocked(mode.Token)
	return err
}

// Trigger는 센티널 파일을 만들고 토큰을 반환합니다
func (s *Switch) Trigger(reason string) (string, error) {
	now := time.Now().UTC()
	token := id.At(now)

	if err := atomicfile.WriteJSON(s.path, sentinel{Token: token, Reason: reason, TriggeredAt: now}); err != nil {
		return "", fmt.Errorf("긴급 청산 센티널 생성 실패: %w", err)
	}
	log.Printf("긴급 청산 스위치 작동: %s (토큰: %s)", reason, token)
	return token, nil
}

// IsTriggered는 센티널 파일이 있는지 확인합니다
func (s *Switch) IsTriggered() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Snapshot은 현재 스위치 상태를 읽습니다. 사이클 시작 시 한 번만 호출합니다.
func (s *Switch) Snapshot(accountID string) Mode {
	mode, err := s.read()
	if err != nil {
		// 읽을 수 없는 센티널도 청산 지시로 간주합니다
		log.Printf("[%s] 긴급 청산 센티널 확인 실패, 청산 모드로 진행: %v", accountID, err)
		return Mode{Liquidate: true, Token: "unreadable"}
	}
	return mode
}

// read는 센티널 파일을 읽습니다. 내용이 비었거나 깨졌으면 수정 시각으로 토큰을 만듭니다.
func (s *Switch) read() (Mode, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Mode{}, nil
		}
		return Mode{}, err
	}

	var sn sentinel
	if _, err := atomicfile.ReadJSON(s.path, &sn); err != nil && !errors.Is(err, atomicfile.ErrCorrupted) {
		return Mode{}, err
	}
	if strings.TrimSpace(sn.Token) == "" {
		sn.Token = fmt.Sprintf("mtime-%d", info.ModTime().UnixNano())
		sn.TriggeredAt = info.ModTime().UTC()
	}

	return Mode{
		Liquidate:   true,
		Token:       sn.Token,
		Reason:      sn.Reason,
		TriggeredAt: sn.TriggeredAt,
	}, nil
}

// Acknowledge는 계정이 token에 대한 청산 패스를 마쳤음을 기록합니다.
// 개별 매도 결과와 무관하게 패스가 끝나면 호출합니다. 센티널을 지웠으면 true를 반환합니다.
func (s *Switch) Acknowledge(accountID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.acks[accountID] = token
	return s.clearIfCompleteLocked(token)
}

func (s *Switch) clearIfCompleteLocked(token string) (bool, error) {
	var pending []string
	for accountID := range s.registered {
		if s.acks[accountID] != token {
			pending = append(pending, accountID)
		}
	}
	if len(pending) > 0 {
		sort.Strings(pending)
		log.Printf("긴급 청산 진행 중, 대기 계정: %s", strings.Join(pending, ", "))
		return false, nil
	}

	// 청산 도중 새로 작동된 스위치는 지우지 않습니다
	current, err := s.read()
	if err != nil {
		return false, err
	}
	if current.Liquidate && current.Token != token {
		log.Printf("긴급 청산 센티널이 새 토큰(%s)으로 교체되어 유지합니다", current.Token)
		s.acks = make(map[string]string)
		return false, nil
	}

	if err := s.removeLocked(); err != nil {
		return false, err
	}
	log.Printf("모든 계정 긴급 청산 완료, 센티널 제거 (토큰: %s)", token)
	return true, nil
}

// Clear는 센티널을 즉시 지웁니다
func (s *Switch) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked()
}

func (s *Switch) removeLocked() error {
	s.acks = make(map[string]string)
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("긴급 청산 센티널 제거 실패: %w", err)
	}
	return nil
}
