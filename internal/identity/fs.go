package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
)

const (
	loreFile     = "LORE.md"
	soulFile     = "SOUL.md"
	identityFile = "IDENTITY.md"
	driftLogFile = "DRIFT_LOG.json"
)

var documentFiles = map[domain.DocumentKind]string{
	domain.DocumentLore:     loreFile,
	domain.DocumentSoul:     soulFile,
	domain.DocumentIdentity: identityFile,
}

// FileStore keeps each agent's documents as plain files under
// <root>/<agent id>/. Writes go through a temp file and rename.
type FileStore struct {
	root string
	mu   sync.Mutex
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create agents dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) agentDir(agentID uuid.UUID) string {
	return filepath.Join(s.root, agentID.String())
}

func (s *FileStore) ReadIdentityDocuments(ctx context.Context, agentID uuid.UUID) (*domain.IdentityDocuments, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.agentDir(agentID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrDocumentsNotFound
	}

	docs := &domain.IdentityDocuments{}
	var err error
	if docs.Lore, err = readOptional(filepath.Join(dir, loreFile)); err != nil {
		return nil, err
	}
	if docs.Soul, err = readOptional(filepath.Join(dir, soulFile)); err != nil {
		return nil, err
	}
	if docs.Identity, err = readOptional(filepath.Join(dir, identityFile)); err != nil {
		return nil, err
	}
	if docs.DriftLog, err = s.readDriftLog(agentID); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *FileStore) WriteIdentityDocument(ctx context.Context, agentID uuid.UUID, kind domain.DocumentKind, text string) (string, error) {
	name, ok := documentFiles[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown document kind %q", domain.ErrValidation, kind)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.agentDir(agentID), name)
	if err := writeAtomic(path, []byte(text)); err != nil {
		return "", err
	}
	return path, nil
}

func (s *FileStore) AppendDriftLogEntry(ctx context.Context, agentID uuid.UUID, entry domain.DriftLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.readDriftLog(agentID)
	if err != nil {
		return err
	}
	return s.writeDriftLog(agentID, append(log, entry))
}

// CommitIdentityDrift stages both files, then renames identity first and the
// drift log second. If the second rename fails the previous identity file is
// put back.
func (s *FileStore) CommitIdentityDrift(ctx context.Context, agentID uuid.UUID, identity string, entry domain.DriftLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.agentDir(agentID)
	identityPath := filepath.Join(dir, identityFile)
	logPath := filepath.Join(dir, driftLogFile)

	previous, err := readOptional(identityPath)
	if err != nil {
		return err
	}
	log, err := s.readDriftLog(agentID)
	if err != nil {
		return err
	}
	logData, err := json.MarshalIndent(append(log, entry), "", "  ")
	if err != nil {
		return fmt.Errorf("encode drift log: %w", err)
	}

	identityTmp, err := stage(identityPath, []byte(identity))
	if err != nil {
		return err
	}
	logTmp, err := stage(logPath, logData)
	if err != nil {
		_ = os.Remove(identityTmp)
		return err
	}

	if err := os.Rename(identityTmp, identityPath); err != nil {
		_ = os.Remove(identityTmp)
		_ = os.Remove(logTmp)
		return fmt.Errorf("replace identity: %w", err)
	}
	if err := os.Rename(logTmp, logPath); err != nil {
		_ = os.Remove(logTmp)
		if restoreErr := writeAtomic(identityPath, []byte(previous)); restoreErr != nil {
			return fmt.Errorf("append drift log: %w (restore identity: %v)", err, restoreErr)
		}
		return fmt.Errorf("append drift log: %w", err)
	}
	return nil
}

func (s *FileStore) InitializeDocuments(ctx context.Context, agentID uuid.UUID, docs domain.IdentityDocuments) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.agentDir(agentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}
	for kind, name := range documentFiles {
		if err := writeAtomic(filepath.Join(dir, name), []byte(docs.Get(kind))); err != nil {
			return err
		}
	}
	log := docs.DriftLog
	if log == nil {
		log = []domain.DriftLogEntry{}
	}
	return s.writeDriftLog(agentID, log)
}

func (s *FileStore) readDriftLog(agentID uuid.UUID) ([]domain.DriftLogEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.agentDir(agentID), driftLogFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.DriftLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read drift log: %w", err)
	}
	var log []domain.DriftLogEntry
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("decode drift log: %w", err)
	}
	return log, nil
}

func (s *FileStore) writeDriftLog(agentID uuid.UUID, log []domain.DriftLogEntry) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("encode drift log: %w", err)
	}
	return writeAtomic(filepath.Join(s.agentDir(agentID), driftLogFile), data)
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}

func stage(path string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create agent dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}
	return f.Name(), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := stage(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
