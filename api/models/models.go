// Package models tracks the api request and response types
package models

import "github.com/aouyang1/displaywall/config"

type ErrorResponse struct {
	Error string `json:"error"`
}

type AddDeviceRequest struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

type DeviceResponse struct {
	Index    int                             `json:"index"`
	Name     string                          `json:"name"`
	IP       string                          `json:"ip"`
	Displays map[string]config.DisplayConfig `json:"displays,omitempty"`
}

type FolderCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
