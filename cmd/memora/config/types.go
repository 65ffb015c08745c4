// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
)

type MemoraConfig struct {
	// Identity: who this device belongs to
	Identity IdentityConfig `yaml:"identity"`

	// Gateway: the sync gateway this device talks to (and serves)
	Gateway GatewayConfig `yaml:"gateway"`

	// Storage: the embedded local database
	Storage StorageConfig `yaml:"storage"`

	// Logging: level and destination for structured logs
	Logging LoggingConfig `yaml:"logging"`
}

type IdentityConfig struct {
	PatientID string `yaml:"patient_id"` // e.g. patient-1
	DeviceID  string `yaml:"device_id"`  // local identity owning liked sets
	Role      string `yaml:"role"`       // patient, caregiver or clinician
}

type GatewayConfig struct {
	// BaseURL is where the companion connects, e.g. http://localhost:8745
	BaseURL string `yaml:"base_url"`

	// ListenAddr is where `memora serve` binds.
	ListenAddr string `yaml:"listen_addr"`
}

type StorageConfig struct {
	// Path holds the BadgerDB files. Empty means ~/.memora/data.
	Path string `yaml:"path"`

	SyncWrites bool `yaml:"sync_writes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // empty disables the file handler
	JSON  bool   `yaml:"json"`
}

func DefaultConfig() MemoraConfig {
	dataDir := "data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".memora", "data")
	}
	return MemoraConfig{
		Identity: IdentityConfig{
			PatientID: "patient-1",
			DeviceID:  "device-1",
			Role:      "caregiver",
		},
		Gateway: GatewayConfig{
			BaseURL:    "http://localhost:8745",
			ListenAddr: ":8745",
		},
		Storage: StorageConfig{
			Path:       dataDir,
			SyncWrites: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
