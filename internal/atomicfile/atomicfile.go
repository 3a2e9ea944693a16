// Package atomicfile는 크래시에 안전한 JSON 파일 저장을 제공합니다.
package atomicfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorrupted는 파일 내용을 해석할 수 없을 때 반환됩니다
var ErrCorrupted = errors.New("손상된 파일")

// CorruptedSuffix는 손상된 파일을 격리할 때 붙이는 확장자입니다
const CorruptedSuffix = ".corrupted"

// WriteJSON은 v를 임시 파일에 쓴 뒤 rename으로 교체합니다.
// 쓰기 도중 크래시가 나도 이전 파일은 그대로 남습니다.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("JSON 직렬화 실패: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("디렉터리 생성 실패: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("임시 파일 생성 실패: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("임시 파일 쓰기 실패: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("임시 파일 동기화 실패: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("임시 파일 닫기 실패: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("파일 교체 실패: %w", err)
	}
	return nil
}

// ReadJSON은 path의 JSON을 v로 읽습니다.
// 파일이 없으면 found=false, 내용이 깨졌으면 ErrCorrupted를 감싼 에러를 반환합니다.
func ReadJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("파일 읽기 실패: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorrupted, path, err)
	}
	return true, nil
}

// Quarantine은 손상된 파일을 path + ".corrupted"로 옮기고 새 경로를 반환합니다
func Quarantine(path string) (string, error) {
	dst := path + CorruptedSuffix
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("손상 파일 격리 실패: %w", err)
	}
	return dst, nil
}
