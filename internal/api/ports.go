package api

import (
	"github.com/hw-control/hgc/internal/command"
	"github.com/hw-control/hgc/internal/sched"
)

// OrchestratorPort is the actuation surface the handlers call.
type OrchestratorPort = command.OrchestratorPort

// SchedulerStatus exposes task health for the health endpoint.
type SchedulerStatus interface {
	Status() []sched.Status
}
