package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eidolon-project/eidolon/internal/types"
	"gorm.io/gorm"
)

// ScanConfigStore persists one ScanConfig per user.
type ScanConfigStore interface {
	Get(userID string) (types.ScanConfig, bool, error)
	Put(userID string, cfg types.ScanConfig) error
}

type gormConfigStore struct {
	db *gorm.DB
}

// NewGormConfigStore builds a ScanConfigStore backed by db. Callers run
// Migrate once (typically from the "eidolon migrate" subcommand) before
// serving traffic.
func NewGormConfigStore(db *gorm.DB) ScanConfigStore {
	return &gormConfigStore{db: db}
}

// Migrate applies the scanner_configs table schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&configRecord{})
}

func (s *gormConfigStore) Get(userID string) (types.ScanConfig, bool, error) {
	var rec configRecord
	err := s.db.Where("user_id = ?", userID).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return types.ScanConfig{}, false, nil
	}
	if err != nil {
		return types.ScanConfig{}, false, fmt.Errorf("load config for %s: %w", userID, err)
	}

	cfg, err := rec.toScanConfig()
	if err != nil {
		return types.ScanConfig{}, false, err
	}
	return cfg, true, nil
}

func (s *gormConfigStore) Put(userID string, cfg types.ScanConfig) error {
	rec, err := fromScanConfig(userID, cfg)
	if err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()

	return s.db.Save(&rec).Error
}

func fromScanConfig(userID string, cfg types.ScanConfig) (configRecord, error) {
	cidrs, err := json.Marshal(cfg.NetworkCIDRs)
	if err != nil {
		return configRecord{}, fmt.Errorf("marshal network_cidrs: %w", err)
	}
	ports, err := json.Marshal(cfg.Ports)
	if err != nil {
		return configRecord{}, fmt.Errorf("marshal ports: %w", err)
	}
	options, err := json.Marshal(cfg.Options)
	if err != nil {
		return configRecord{}, fmt.Errorf("marshal options: %w", err)
	}
	return configRecord{
		UserID:       userID,
		NetworkCIDRs: string(cidrs),
		Ports:        string(ports),
		PortPreset:   string(cfg.PortPreset),
		Options:      string(options),
	}, nil
}

func (r configRecord) toScanConfig() (types.ScanConfig, error) {
	var cfg types.ScanConfig
	if err := json.Unmarshal([]byte(r.NetworkCIDRs), &cfg.NetworkCIDRs); err != nil {
		return cfg, fmt.Errorf("unmarshal network_cidrs: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Ports), &cfg.Ports); err != nil {
		return cfg, fmt.Errorf("unmarshal ports: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Options), &cfg.Options); err != nil {
		return cfg, fmt.Errorf("unmarshal options: %w", err)
	}
	cfg.PortPreset = types.PortPreset(r.PortPreset)
	return cfg, nil
}
