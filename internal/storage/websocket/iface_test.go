package websocket_test

// Interface checks live in an external test package: storage imports this
// package (factory.go), so an in-package test importing storage would cycle.

import (
	"github.com/drlrcc/torcs-driver/internal/storage"
	"github.com/drlrcc/torcs-driver/internal/storage/websocket"
)

// Compile-time interface checks.
var (
	_ storage.Backend      = (*websocket.Backend)(nil)
	_ storage.StepRecorder = (*websocket.Backend)(nil)
)
