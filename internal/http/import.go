package http

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hikeshare/importer/internal/entities"
	"github.com/hikeshare/importer/internal/importer"
)

// ImportStarter creates (or reuses) the job record for an import run,
// and aborts records whose run could not be handed off.
type ImportStarter interface {
	StartImport(req importer.ImportRequest) (*entities.ImportJob, bool, error)
	StartBulkImport(req importer.ImportRequest) (*entities.BulkImportJob, []*entities.ImportJob, error)
	AbortImport(jobID, reason string) error
	AbortBulkImport(bulkJobID string, childJobIDs []string, reason string) error
	KnownSource(tag string) bool
}

// RunDispatcher hands a created job off for asynchronous execution.
type RunDispatcher interface {
	Dispatch(jobID string, req importer.ImportRequest) error
	DispatchBulk(bulkJobID string, childJobIDs []string, req importer.ImportRequest) error
}

// ImportStats summarizes counters in the trigger response.
type ImportStats struct {
	Processed int `json:"processed"`
	Added     int `json:"added"`
	Failed    int `json:"failed"`
}

// ImportTriggerResponse is the structured result of the import trigger.
// Partial failure is reported here, never as a bare 500.
type ImportTriggerResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Stats   ImportStats `json:"stats"`
	JobID   string      `json:"jobId"`
}

// ImportController exposes the import trigger endpoint.
type ImportController struct {
	starter    ImportStarter
	dispatcher RunDispatcher
}

// NewImportController creates the trigger controller.
func NewImportController(starter ImportStarter, dispatcher RunDispatcher) *ImportController {
	return &ImportController{starter: starter, dispatcher: dispatcher}
}

// bindImportRequest parses and validates the trigger payload. It writes
// the error response itself and reports whether the request is usable.
func (ctrl *ImportController) bindImportRequest(c *gin.Context) (importer.ImportRequest, bool) {
	var req importer.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return req, false
	}

	if len(req.Sources) == 0 {
		respondBadRequest(c, "at least one source is required")
		return req, false
	}
	for _, tag := range req.Sources {
		if !ctrl.starter.KnownSource(tag) {
			respondBadRequest(c, "unknown source: "+tag)
			return req, false
		}
	}
	if req.MaxTrailsPerSource < 0 {
		respondBadRequest(c, "maxTrailsPerSource must be positive")
		return req, false
	}

	return req, true
}

// Trigger handles POST /api/import/trails. A request naming a target
// with an already-running job gets that job's id back instead of a new
// job; this is the duplicate-run guard, not an error.
func (ctrl *ImportController) Trigger(c *gin.Context) {
	req, ok := ctrl.bindImportRequest(c)
	if !ok {
		return
	}

	job, created, err := ctrl.starter.StartImport(req)
	if err != nil {
		// The one hard-error case: the job record itself could not be
		// created.
		respondInternalError(c, "create import job", err)
		return
	}

	if !created {
		c.IndentedJSON(http.StatusOK, ImportTriggerResponse{
			Success: true,
			Message: "an import for this target is already running",
			Stats: ImportStats{
				Processed: job.TrailsProcessed,
				Added:     job.TrailsAdded,
				Failed:    job.TrailsFailed,
			},
			JobID: job.ID,
		})
		return
	}

	if err := ctrl.dispatcher.Dispatch(job.ID, req); err != nil {
		// A queued job that never reaches the queue would block its
		// target forever; settle it before reporting the failure.
		if aerr := ctrl.starter.AbortImport(job.ID, "failed to enqueue import run"); aerr != nil {
			log.Printf("Import trigger: failed to abort job %s: %v", job.ID, aerr)
		}
		respondInternalError(c, "dispatch import job", err)
		return
	}

	c.IndentedJSON(http.StatusAccepted, ImportTriggerResponse{
		Success: true,
		Message: "import started",
		JobID:   job.ID,
	})
}

// BulkTriggerResponse is the structured result of the bulk trigger.
type BulkTriggerResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	BulkJobID string   `json:"bulkJobId"`
	ChildJobs []string `json:"childJobs"`
	TotalJobs int      `json:"totalJobs"`
	TotalCap  int      `json:"totalTrailsRequested"`
}

// TriggerBulk handles POST /api/import/bulk: one child job per source
// under a shared parent, run sequentially by a task worker.
func (ctrl *ImportController) TriggerBulk(c *gin.Context) {
	req, ok := ctrl.bindImportRequest(c)
	if !ok {
		return
	}

	bulk, children, err := ctrl.starter.StartBulkImport(req)
	if err != nil {
		respondInternalError(c, "create bulk import job", err)
		return
	}

	childIDs := make([]string, 0, len(children))
	for _, child := range children {
		childIDs = append(childIDs, child.ID)
	}

	if bulk == nil {
		// Every source already has a live job; nothing was created.
		c.IndentedJSON(http.StatusOK, BulkTriggerResponse{
			Success:   true,
			Message:   "imports for these sources are already running",
			ChildJobs: childIDs,
			TotalJobs: len(childIDs),
		})
		return
	}

	if err := ctrl.dispatcher.DispatchBulk(bulk.ID, childIDs, req); err != nil {
		if aerr := ctrl.starter.AbortBulkImport(bulk.ID, childIDs, "failed to enqueue bulk import run"); aerr != nil {
			log.Printf("Bulk import trigger: failed to abort bulk job %s: %v", bulk.ID, aerr)
		}
		respondInternalError(c, "dispatch bulk import", err)
		return
	}

	c.IndentedJSON(http.StatusAccepted, BulkTriggerResponse{
		Success:   true,
		Message:   "bulk import started",
		BulkJobID: bulk.ID,
		ChildJobs: childIDs,
		TotalJobs: bulk.TotalJobs,
		TotalCap:  bulk.TotalTrailsRequested,
	})
}
