package model

import "time"

// UsageStats summarizes job counts per generator over a query window.
type UsageStats struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// BatchListEntry is a summary row returned by the batch listing endpoint.
type BatchListEntry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	JobCount int       `json:"job_count"`
}
