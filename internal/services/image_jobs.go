package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/models"
	"go.uber.org/zap"
)

type ImageJobStatus string

const (
	JobRunning ImageJobStatus = "running"
	JobDone    ImageJobStatus = "done"
	JobFailed  ImageJobStatus = "failed"
)

const imageJobTTL = time.Hour

type ImageJob struct {
	ID         uuid.UUID      `json:"id"`
	UserID     uuid.UUID      `json:"-"`
	Status     ImageJobStatus `json:"status"`
	Image      string         `json:"image,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

// ImageJobs runs image generations in the background so clients can poll
// instead of holding a request open. Jobs live in memory only.
type ImageJobs struct {
	proxy *AIProxy
	base  context.Context
	log   *zap.Logger

	mu   sync.Mutex
	jobs map[uuid.UUID]*ImageJob
	wg   sync.WaitGroup
	now  func() time.Time
}

// NewImageJobs binds job lifetimes to base: cancelling it aborts running
// generations.
func NewImageJobs(base context.Context, proxy *AIProxy, log *zap.Logger) *ImageJobs {
	return &ImageJobs{
		proxy: proxy,
		base:  base,
		log:   log,
		jobs:  make(map[uuid.UUID]*ImageJob),
		now:   time.Now,
	}
}

func (j *ImageJobs) Start(user *models.User, prompt string) (ImageJob, error) {
	if err := j.proxy.authorizeImage(user, prompt); err != nil {
		return ImageJob{}, err
	}

	job := &ImageJob{
		ID:        uuid.New(),
		UserID:    user.ID,
		Status:    JobRunning,
		CreatedAt: j.now(),
	}

	j.mu.Lock()
	j.pruneLocked()
	j.jobs[job.ID] = job
	snapshot := *job
	j.mu.Unlock()

	j.wg.Add(1)
	go j.run(job.ID, prompt)
	return snapshot, nil
}

func (j *ImageJobs) run(id uuid.UUID, prompt string) {
	defer j.wg.Done()

	image, err := j.proxy.runImage(j.base, prompt)

	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return
	}
	finished := j.now()
	job.FinishedAt = &finished
	if err != nil {
		job.Status = JobFailed
		job.Error = apperr.Message(err)
		j.log.Warn("image job failed", zap.String("job_id", id.String()), zap.Error(err))
		return
	}
	job.Status = JobDone
	job.Image = image
}

// Get returns a copy of the job. Jobs of other users read as missing.
func (j *ImageJobs) Get(userID, id uuid.UUID) (ImageJob, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok || job.UserID != userID {
		return ImageJob{}, apperr.NotFound("Job not found")
	}
	return *job, nil
}

// Wait blocks until every started job has finished.
func (j *ImageJobs) Wait() {
	j.wg.Wait()
}

func (j *ImageJobs) pruneLocked() {
	cutoff := j.now().Add(-imageJobTTL)
	for id, job := range j.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(j.jobs, id)
		}
	}
}
