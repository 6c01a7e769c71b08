package memory_test

// Interface checks live in an external test package: storage imports this
// package (factory.go), so an in-package test importing storage would cycle.

import (
	"github.com/drlrcc/torcs-driver/internal/storage"
	"github.com/drlrcc/torcs-driver/internal/storage/memory"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*memory.Backend)(nil)

// Verify Backend implements storage.Uploadable interface
var _ storage.Uploadable = (*memory.Backend)(nil)
