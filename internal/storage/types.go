package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines journal next to Path
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retain caps how many job records are kept. 0 keeps everything.
	Retain int
}

// JobRecord is the journaled summary of one job.
type JobRecord struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	FromName    string         `json:"sender_name,omitempty"`
	Subject     string         `json:"subject"`
	Workers     int            `json:"workers"`
	Total       int            `json:"total"`
	Sent        int            `json:"sent"`
	Failed      int            `json:"failed"`
	Interrupted bool           `json:"interrupted,omitempty"`
	Results     []ResultRecord `json:"results,omitempty"`
}

// ResultRecord mirrors one per-recipient line of a job log.
type ResultRecord struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}
