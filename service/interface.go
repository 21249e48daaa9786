// Package service runs long-lived infrastructure beside the engine loop
package service

import "context"

// Service is a subsystem owning an external resource: the terminal, the audio
// device, the script VM, the config watcher
//
// The Hub drives every service through the same sequence:
//
//	New...(opts)  construct, no side effects
//	Init()        open resources, may fail, no goroutines
//	Start(ctx)    spawn goroutines that exit when ctx ends
//	Stop()        join goroutines, release resources
type Service interface {
	Name() string

	// Dependencies names services whose Init must complete first
	Dependencies() []string

	Init() error

	// Start runs once every registered service has initialized
	Start(ctx context.Context) error

	// Stop may be called more than once and without a prior Start
	Stop() error
}
