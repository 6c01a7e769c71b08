package gormstorage_test

// Interface checks live in an external test package: storage imports this
// package (factory.go), so an in-package test importing storage would cycle.

import (
	"github.com/drlrcc/torcs-driver/internal/storage"
	gormstorage "github.com/drlrcc/torcs-driver/internal/storage/gorm"
)

// Compile-time interface checks
var (
	_ storage.Backend      = (*gormstorage.Backend)(nil)
	_ storage.StepRecorder = (*gormstorage.Backend)(nil)
)
