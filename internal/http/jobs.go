package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hikeshare/importer/internal/database/jobs"
	"github.com/hikeshare/importer/internal/entities"
	"github.com/hikeshare/importer/internal/progress"
)

// JobReader provides read access to job records for the status API.
type JobReader interface {
	GetJob(id string) (*entities.ImportJob, error)
	GetBulkJob(id string) (*entities.BulkImportJob, error)
	GetChildJobs(bulkJobID string) ([]entities.ImportJob, error)
	RecentJobs(limit int) ([]entities.ImportJob, error)
}

// JobStatusResponse is an ImportJob together with derived progress.
type JobStatusResponse struct {
	Job      *entities.ImportJob `json:"job"`
	Progress progress.Snapshot   `json:"progress"`
}

// BulkJobStatusResponse is a bulk job with its children.
type BulkJobStatusResponse struct {
	Job      *entities.BulkImportJob `json:"job"`
	Children []entities.ImportJob    `json:"children"`
}

// JobsController exposes read access to import jobs.
type JobsController struct {
	reader   JobReader
	reporter *progress.Reporter
}

// NewJobsController creates the job status controller.
func NewJobsController(reader JobReader, reporter *progress.Reporter) *JobsController {
	return &JobsController{reader: reader, reporter: reporter}
}

// GetJob handles GET /api/import/jobs/:id.
func (ctrl *JobsController) GetJob(c *gin.Context) {
	id := c.Param("id")

	job, err := ctrl.reader.GetJob(id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		respondNotFound(c, "import job")
		return
	}
	if err != nil {
		respondInternalError(c, "load import job", err)
		return
	}

	snap, err := ctrl.reporter.Snapshot(id)
	if err != nil {
		respondInternalError(c, "derive job progress", err)
		return
	}

	c.IndentedJSON(http.StatusOK, JobStatusResponse{Job: job, Progress: snap})
}

// ListJobs handles GET /api/import/jobs.
func (ctrl *JobsController) ListJobs(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			respondBadRequest(c, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	recent, err := ctrl.reader.RecentJobs(limit)
	if err != nil {
		respondInternalError(c, "list import jobs", err)
		return
	}

	c.IndentedJSON(http.StatusOK, gin.H{"jobs": recent})
}

// GetBulkJob handles GET /api/import/bulk/:id.
func (ctrl *JobsController) GetBulkJob(c *gin.Context) {
	id := c.Param("id")

	bulk, err := ctrl.reader.GetBulkJob(id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		respondNotFound(c, "bulk import job")
		return
	}
	if err != nil {
		respondInternalError(c, "load bulk import job", err)
		return
	}

	children, err := ctrl.reader.GetChildJobs(id)
	if err != nil {
		respondInternalError(c, "load bulk job children", err)
		return
	}

	c.IndentedJSON(http.StatusOK, BulkJobStatusResponse{Job: bulk, Children: children})
}
