package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/aal-logistics/api-go/internal/allocator"
	"github.com/example/aal-logistics/api-go/internal/metrics"
	"github.com/example/aal-logistics/api-go/internal/model"
)

type Store interface {
	allocator.NumberSource
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateClient(ctx context.Context, c model.Client) (model.Client, error)
	GetClient(ctx context.Context, id string) (model.Client, error)
	CreateJob(ctx context.Context, job model.Job) (model.Job, error)
	GetJob(ctx context.Context, id string) (model.Job, error)
	ListJobs(ctx context.Context, filter model.JobFilter) ([]model.Job, error)
}

type Config struct {
	// MaxAttempts bounds allocate+insert cycles when the unique constraint
	// rejects an allocated number.
	MaxAttempts int
	Now         func() time.Time
	Logger      logrus.FieldLogger
}

// Service creates jobs. It is the caller that owns the allocation retry.
type Service struct {
	store       Store
	alloc       *allocator.Allocator
	now         func() time.Time
	maxAttempts int
	log         logrus.FieldLogger
}

func New(store Store, cfg Config) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Service{
		store:       store,
		alloc:       allocator.New(store),
		now:         cfg.Now,
		maxAttempts: cfg.MaxAttempts,
		log:         cfg.Logger,
	}
}

// NewJob is the input for job creation. JobNumber is optional; when empty a
// number is allocated in the current year's bucket.
type NewJob struct {
	ClientID    string        `json:"clientId"`
	JobNumber   string        `json:"jobNumber,omitempty"`
	JobType     model.JobType `json:"jobType"`
	Description string        `json:"description"`
}

func (in NewJob) validate() error {
	if strings.TrimSpace(in.ClientID) == "" {
		return fmt.Errorf("%w: clientId is required", model.ErrValidation)
	}
	if !in.JobType.IsCanonical() {
		return fmt.Errorf("%w: job type %q is not accepted for new jobs", model.ErrValidation, in.JobType)
	}
	if in.JobNumber == "" {
		return nil
	}
	n, err := model.ParseJobNumber(in.JobNumber)
	if err != nil {
		return err
	}
	if n.JobType() != in.JobType {
		return fmt.Errorf("%w: job number %s does not match job type %s", model.ErrValidation, in.JobNumber, in.JobType)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in NewJob) (model.Job, error) {
	if err := in.validate(); err != nil {
		return model.Job{}, err
	}
	if _, err := s.store.GetClient(ctx, in.ClientID); err != nil {
		return model.Job{}, fmt.Errorf("client %s: %w", in.ClientID, err)
	}

	if in.JobNumber != "" {
		job, err := s.store.CreateJob(ctx, model.Job{
			ClientID:    in.ClientID,
			JobNumber:   in.JobNumber,
			JobType:     in.JobType,
			Description: in.Description,
		})
		if err != nil {
			return model.Job{}, err
		}
		s.log.WithFields(logrus.Fields{"job_id": job.ID, "job_number": job.JobNumber}).Info("job created with supplied number")
		return job, nil
	}
	return s.createAllocated(ctx, in)
}

func (s *Service) createAllocated(ctx context.Context, in NewJob) (model.Job, error) {
	abbr, _ := in.JobType.Abbreviation()
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var job model.Job
		err := s.store.InTx(ctx, func(ctx context.Context) error {
			n, err := s.alloc.Allocate(ctx, in.JobType, s.now().Year())
			if err != nil {
				return err
			}
			job, err = s.store.CreateJob(ctx, model.Job{
				ClientID:    in.ClientID,
				JobNumber:   n.String(),
				JobType:     in.JobType,
				Description: in.Description,
			})
			return err
		})
		if err == nil {
			metrics.RecordJobNumberAllocated(abbr)
			s.log.WithFields(logrus.Fields{
				"job_id":     job.ID,
				"job_number": job.JobNumber,
				"attempt":    attempt,
			}).Info("job created with allocated number")
			return job, nil
		}
		if !model.Retryable(err) {
			return model.Job{}, err
		}
		metrics.RecordJobNumberConflict(abbr)
		s.log.WithFields(logrus.Fields{"job_type": in.JobType, "attempt": attempt}).Warn("job number taken, allocating again")
		lastErr = err
	}
	return model.Job{}, fmt.Errorf("allocate job number after %d attempts: %w", s.maxAttempts, lastErr)
}

// NextNumber previews the number the next allocation in the bucket would get.
func (s *Service) NextNumber(ctx context.Context, jobType model.JobType, year int) (model.JobNumber, error) {
	if year == 0 {
		year = s.now().Year()
	}
	return s.alloc.Allocate(ctx, jobType, year)
}

func (s *Service) Get(ctx context.Context, id string) (model.Job, error) {
	return s.store.GetJob(ctx, id)
}

func (s *Service) List(ctx context.Context, filter model.JobFilter) ([]model.Job, error) {
	return s.store.ListJobs(ctx, filter)
}

func (s *Service) CreateClient(ctx context.Context, c model.Client) (model.Client, error) {
	if strings.TrimSpace(c.Name) == "" {
		return model.Client{}, fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	return s.store.CreateClient(ctx, c)
}

func (s *Service) GetClient(ctx context.Context, id string) (model.Client, error) {
	return s.store.GetClient(ctx, id)
}
