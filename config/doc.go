// Package config provides runtime configuration for vmeflow processes.
//
// Configuration is JSON, loaded through a Loader that merges file layers over
// built-in defaults and then applies VMEFLOW_* environment overrides. Duration
// fields accept Go duration strings ("500ms", "2s") in files and are stored as
// time.Duration.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/example.json")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// The config covers the process surface only: NATS connection, readout feed
// subject and buffering, stream worker timetick interval, monitor service
// listen address, run output directory, and logging. Analysis graphs are
// deliberately not configurable here; they are built in code through the
// typed engine factories.
//
// File access goes through safeReadFile/safeWriteFile, which reject path
// traversal, oversized files, and non-JSON extensions.
package config
