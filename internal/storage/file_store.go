package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// FileStore is a MemoryStore that writes its full state to a JSON file before
// each commit becomes visible.
//
// FileStore is for local development only. It does not scale past a single
// process and rewrites the whole file on every transition.
type FileStore struct {
	*MemoryStore
	filePath string
}

// fileData is the JSON layout of the file.
type fileData struct {
	Mints         []Mint              `json:"mints"`
	TokenAccounts []TokenAccount      `json:"token_accounts"`
	Stablecoins   []stablecoin.Record `json:"stablecoins"`
}

// NewFileStore opens (or creates) a file-backed store.
func NewFileStore(filePath string) (*FileStore, error) {
	if env := os.Getenv("ENVIRONMENT"); env == "production" || env == "prod" {
		fmt.Fprintln(os.Stderr, "WARNING: file storage backend is not safe for production; use postgres or mongodb")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	store := &FileStore{
		MemoryStore: NewMemoryStore(),
		filePath:    filePath,
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	store.persist = store.save
	return store, nil
}

// load reads data from the file.
func (s *FileStore) load() error {
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil
	}

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}

	snap := newSnapshot()
	for _, m := range data.Mints {
		snap.mints[m.Address] = m
	}
	for _, a := range data.TokenAccounts {
		snap.accounts[a.Address] = a
	}
	for _, r := range data.Stablecoins {
		snap.records[r.Address] = r
	}
	s.data = snap
	return nil
}

// save writes snap to disk through a temporary file and an atomic rename.
func (s *FileStore) save(snap snapshot) error {
	data := fileData{
		Mints:         make([]Mint, 0, len(snap.mints)),
		TokenAccounts: make([]TokenAccount, 0, len(snap.accounts)),
		Stablecoins:   make([]stablecoin.Record, 0, len(snap.records)),
	}
	for _, m := range snap.mints {
		data.Mints = append(data.Mints, m)
	}
	for _, a := range snap.accounts {
		data.TokenAccounts = append(data.TokenAccounts, a)
	}
	for _, r := range snap.records {
		data.Stablecoins = append(data.Stablecoins, r)
	}
	sortRecords(data.Stablecoins)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, jsonData, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}
