// Copyright (c) 2025 BVK Chaitanya

package api

import "fmt"

func (r *StatusRequest) Check() error {
	return nil
}

func (r *BalancesRequest) Check() error {
	return nil
}

func (r *PositionsRequest) Check() error {
	return nil
}

func (r *ResyncRequest) Check() error {
	switch r.Kind {
	case "", "balance", "position":
		return nil
	}
	return fmt.Errorf("invalid resync kind %q", r.Kind)
}
