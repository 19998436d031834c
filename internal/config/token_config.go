package config

import "time"

type TokenConfig interface {
	GetRefreshLeadWindow() time.Duration
	GetRefreshCheckInterval() time.Duration
}

type Token struct {
	file *FileValues
}

var _ TokenConfig = Token{}

// GetRefreshLeadWindow is how long before expiry a proactive refresh starts
func (t Token) GetRefreshLeadWindow() time.Duration {
	if t.file != nil {
		return durationOr(t.file.RefreshLeadWindow, time.Minute)
	}
	return time.Minute
}

// GetRefreshCheckInterval is the period of the background validity check
func (t Token) GetRefreshCheckInterval() time.Duration {
	if t.file != nil {
		return durationOr(t.file.RefreshCheckInterval, 30*time.Second)
	}
	return 30 * time.Second
}
