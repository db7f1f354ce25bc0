package main

import (
	"time"

	"github.com/gin-gonic/gin"

	"shopcalls/internal/app"
	"shopcalls/internal/httpapi"
	"shopcalls/internal/jobs"
)

// matches the transcribe-all runner delay
const onDemandCallDelay = 2 * time.Second

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app.App, scheduler *jobs.Scheduler) {
	httpapi.Register(r, httpapi.Handlers{
		Ingest:          a.Ingest,
		Transcriber:     a.Transcriber,
		Scheduler:       scheduler,
		Reports:         a.Reports,
		Audit:           a.Audit,
		Health:          a.Health,
		TranscribeDelay: onDemandCallDelay,
	})
}
