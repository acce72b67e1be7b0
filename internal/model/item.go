// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"time"
)

// Validation errors for Item.
var (
	ErrEmptyName = errors.New("name is required")
)

// Item is the single entity kept by the item store.
type Item struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate checks if the Item has valid field values.
func (i *Item) Validate() error {
	if i.Name == "" {
		return ErrEmptyName
	}

	return nil
}

// ItemPatch carries a partial update. A nil field is left unchanged.
type ItemPatch struct {
	Name        *string
	Description *string
}

// Apply returns a copy of item with the present patch fields replaced.
func (p ItemPatch) Apply(item Item) Item {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	return item
}

// Validate rejects a patch that would clear the item name.
func (p ItemPatch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return ErrEmptyName
	}
	return nil
}

// SampleItems returns the items written to an empty store when seeding is enabled.
func SampleItems() []Item {
	return []Item{
		{ID: 1, Name: "Item 1", Description: "First sample item"},
		{ID: 2, Name: "Item 2", Description: "Second sample item"},
	}
}

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of a successful request that returns no entity.
type MessageResponse struct {
	Message string `json:"message"`
}

// Status describes whether the HTTP listener is running and where it can be reached.
type Status struct {
	Running bool    `json:"running"`
	URL     *string `json:"url"`
}

// RunningStatus returns a Status for a listener reachable at url.
func RunningStatus(url string) Status {
	return Status{Running: true, URL: &url}
}

// StoppedStatus returns a Status for a stopped listener.
func StoppedStatus() Status {
	return Status{}
}

// URLString returns the URL or an empty string when the listener is stopped.
func (s Status) URLString() string {
	if s.URL == nil {
		return ""
	}
	return *s.URL
}

// WebSocketMessage represents a message sent over WebSocket connection.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Status    *Status   `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocket message types.
const (
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
	WSMessageTypeError  = "error"
)

// NewStatusMessage creates a new WebSocket message carrying a server status.
func NewStatusMessage(status Status) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeStatus,
		Status:    &status,
		Timestamp: time.Now().UTC(),
	}
}
