// Package media хранит загруженные файлы рассылок.
//
// API принимает файл до создания кампании и возвращает присвоенное
// имя; MessageSpec.File ссылается на это имя, gateway читает
// содержимое при отправке. Клиенту не нужен доступ к файловой
// системе сервера.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound — файла с таким именем нет в хранилище.
var ErrNotFound = errors.New("media file not found")

// ErrBadName — имя не похоже на выданное хранилищем.
var ErrBadName = errors.New("invalid media file name")

// Store — файловое хранилище медиа.
type Store struct {
	dir string
}

// NewStore открывает хранилище в каталоге dir, создавая его при
// необходимости.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save сохраняет содержимое r под новым именем и возвращает его.
// Из исходного имени сохраняется только расширение.
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	name := uuid.New().String() + strings.ToLower(filepath.Ext(filepath.Base(originalName)))

	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write media file: %w", err)
	}
	return name, nil
}

// Read возвращает содержимое файла по имени, выданному Save.
func (s *Store) Read(name string) ([]byte, error) {
	// Имя — плоское, путь наружу каталога не принимается
	if name == "" || name != filepath.Base(name) {
		return nil, ErrBadName
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read media file: %w", err)
	}
	return data, nil
}

// Remove удаляет файл. Отсутствующий файл не считается ошибкой.
func (s *Store) Remove(name string) error {
	if name == "" || name != filepath.Base(name) {
		return ErrBadName
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}
