// Package service implements the control plane operations behind the
// HTTP API. Handlers call its methods; business logic lives here, not
// in handlers.
package service

import (
	"github.com/trawlhq/trawl/internal/config"
	"github.com/trawlhq/trawl/internal/jobs"
	"github.com/trawlhq/trawl/internal/scheduler"
	"github.com/trawlhq/trawl/internal/scraper"
	"github.com/trawlhq/trawl/internal/store"
	"github.com/trawlhq/trawl/internal/validator"
)

// ServiceError wraps an error with a code for API response mapping.
type ServiceError struct {
	Code    string // INVALID_ARGUMENT, NOT_FOUND, CONFLICT, INTERNAL
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }
func (e *ServiceError) Unwrap() error { return e.Err }

func invalidArg(msg string) *ServiceError {
	return &ServiceError{Code: "INVALID_ARGUMENT", Message: msg}
}

func notFound(msg string) *ServiceError {
	return &ServiceError{Code: "NOT_FOUND", Message: msg}
}

func internal(msg string, err error) *ServiceError {
	return &ServiceError{Code: "INTERNAL", Message: msg, Err: err}
}

// ControlPlaneService provides all control plane operations.
type ControlPlaneService struct {
	Proxies     *store.ProxyRepo
	Webhooks    *store.WebhookRepo
	Coordinator *scraper.Coordinator
	Validator   *validator.Validator
	Writer      *validator.ResultWriter
	Registry    *jobs.Registry
	Runner      *jobs.Runner
	Scheduler   *scheduler.Scheduler
	EnvCfg      *config.EnvConfig
}
