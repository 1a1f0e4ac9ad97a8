// Copyright (c) 2023 BVK Chaitanya

package gobs

import (
	"fmt"
)

func NewByTypename(typename string) (any, error) {
	var v any
	switch typename {
	case "KeyValue":
		v = new(KeyValue)
	case "NameData":
		v = new(NameData)
	case "BalanceSnapshot":
		v = new(BalanceSnapshot)
	case "PositionSnapshot":
		v = new(PositionSnapshot)
	case "WatcherState":
		v = new(WatcherState)
	case "StrategyState":
		v = new(StrategyState)
	case "ServerState":
		v = new(ServerState)
	case "TelegramState":
		v = new(TelegramState)
	default:
		return nil, fmt.Errorf("unsupported type name %q", typename)
	}
	return v, nil
}
