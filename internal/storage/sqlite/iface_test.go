package sqlitestorage_test

// Interface checks live in an external test package: storage imports this
// package (factory.go), so an in-package test importing storage would cycle.

import (
	"github.com/drlrcc/torcs-driver/internal/storage"
	sqlitestorage "github.com/drlrcc/torcs-driver/internal/storage/sqlite"
)

var _ storage.Backend = (*sqlitestorage.Backend)(nil)
