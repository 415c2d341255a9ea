// Package store persists ScanConfig per user in a relational table, backing
// the GET/PUT /collector/config endpoints across process restarts.
package store

import "time"

// configRecord is the gorm-mapped row: user_id PK, network_cidrs/ports/
// options each stored as a jsonb column (marshaled/unmarshaled by
// ScanConfigStore rather than relying on a native Postgres array type).
type configRecord struct {
	UserID       string    `gorm:"primaryKey;column:user_id"`
	NetworkCIDRs string    `gorm:"column:network_cidrs;type:jsonb"`
	Ports        string    `gorm:"column:ports;type:jsonb"`
	PortPreset   string    `gorm:"column:port_preset"`
	Options      string    `gorm:"column:options;type:jsonb"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (configRecord) TableName() string { return "scanner_configs" }
