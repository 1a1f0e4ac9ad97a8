// Copyright (c) 2023 BVK Chaitanya

package gobs

import (
	"time"
)

type RemoteTime struct {
	time.Time
}

type KeyValue struct {
	Key   string
	Value []byte
}

type NameData struct {
	Name string

	Data string
}
