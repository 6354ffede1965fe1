// Package blob re-exports core blob abstractions and selects the configured
// driver. It is the only package allowed to import the blob infra drivers.
package blob

import (
	"btxclinic/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
	// DriverRedis is the Redis hash driver.
	DriverRedis = core.DriverRedis
)

// ErrNotFound is returned by Get and Head for absent keys.
var ErrNotFound = core.ErrNotFound

// ErrInvalidKey wraps keys a driver refuses to store.
var ErrInvalidKey = core.ErrInvalidKey

// Keys projects a listing to its keys.
func Keys(infos []Info) []string { return core.Keys(infos) }
