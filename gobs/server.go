// Copyright (c) 2023 BVK Chaitanya

package gobs

import (
	"github.com/shopspring/decimal"
)

// AlertsConfig holds the messaging alert thresholds. When used as an entry
// of PerExchangeConfig only the limit maps are consulted.
type AlertsConfig struct {
	// LowBalanceLimits maps an uppercase currency symbol to the free
	// balance at or below which an alert is sent.
	LowBalanceLimits map[string]decimal.Decimal

	PerExchangeConfig map[string]*AlertsConfig
}

type ServerState struct {
	// EnabledStrategyIDs holds the strategies resumed at startup.
	EnabledStrategyIDs []string

	AlertsConfig *AlertsConfig
}

// TelegramState remembers the chat ids of authorized telegram users so the
// bot can message them without waiting for them to message first.
type TelegramState struct {
	UserChatIDMap map[string]int64
}
