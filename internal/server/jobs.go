package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quantbt/internal/backtest"
	"quantbt/internal/logger"
	"quantbt/internal/market"
	"quantbt/internal/optimize"
	"quantbt/internal/store"
	"quantbt/internal/types"
)

type JobKind string

const (
	JobKindBacktest JobKind = "backtest"
	JobKindOptimize JobKind = "optimize"
)

type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Job 是一次异步回测/寻优任务的内存快照。
type Job struct {
	ID         string            `json:"id"`
	Kind       JobKind           `json:"kind"`
	Status     JobStatus         `json:"status"`
	Progress   types.Progress    `json:"progress"`
	Result     *backtest.Result  `json:"result,omitempty"`
	OptResults []optimize.Result `json:"opt_results,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`

	cancel context.CancelFunc
}

// JobManager 持有进行中与已完成的任务。
// 历史持久化交给 store，这里只保内存态。
type JobManager struct {
	provider market.Provider
	results  *store.Store // 可为 nil

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewJobManager(provider market.Provider, results *store.Store) *JobManager {
	return &JobManager{
		provider: provider,
		results:  results,
		jobs:     make(map[string]*Job),
	}
}

// SubmitBacktest 异步执行一次回测，立即返回 job id。
func (m *JobManager) SubmitBacktest(cfg backtest.Config) (*Job, error) {
	orch, err := backtest.NewOrchestrator(cfg, m.provider)
	if err != nil {
		return nil, err
	}
	job := m.newJob(JobKindBacktest)
	orch.SetProgressFunc(func(p types.Progress) {
		m.update(job.ID, func(j *Job) { j.Progress = p })
	})
	ctx, cancel := context.WithCancel(context.Background())
	m.setCancel(job.ID, cancel)
	go func() {
		defer cancel()
		res := orch.Run(ctx)
		m.update(job.ID, func(j *Job) {
			j.Result = res
			if res.Err != nil {
				j.Status = JobStatusFailed
				j.Error = res.ErrMessage
			} else {
				j.Status = JobStatusDone
			}
		})
		m.persistRun(res)
	}()
	return m.snapshot(job.ID), nil
}

// SubmitOptimize 异步执行网格寻优。
func (m *JobManager) SubmitOptimize(base backtest.Config, cfg optimize.Config) (*Job, error) {
	opt, err := optimize.New(base, m.provider, cfg)
	if err != nil {
		return nil, err
	}
	job := m.newJob(JobKindOptimize)
	opt.SetProgressFunc(func(completed, total int) {
		m.update(job.ID, func(j *Job) {
			j.Progress = types.Progress{
				Completed: completed,
				Total:     total,
				Fraction:  float64(completed) / float64(total),
			}
		})
		if m.results != nil {
			if err := m.results.UpdateOptimizationProgress(context.Background(), job.ID, completed); err != nil {
				logger.Debugf("[server] 寻优进度落库失败: %v", err)
			}
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	m.setCancel(job.ID, cancel)
	if m.results != nil {
		combos, gridErr := optimize.EnumerateGrid(cfg.Spaces)
		if gridErr == nil {
			if err := m.results.CreateOptimization(ctx, job.ID, base, cfg, len(combos)); err != nil {
				logger.Warnf("[server] 寻优任务登记失败: %v", err)
			}
		}
	}
	go func() {
		defer cancel()
		results, runErr := opt.Optimize(ctx)
		m.update(job.ID, func(j *Job) {
			j.OptResults = results
			if runErr != nil {
				j.Status = JobStatusFailed
				j.Error = runErr.Error()
			} else {
				j.Status = JobStatusDone
			}
		})
		if m.results != nil {
			if err := m.results.FinishOptimization(context.Background(), job.ID, results, runErr); err != nil {
				logger.Warnf("[server] 寻优结果落库失败: %v", err)
			}
		}
	}()
	return m.snapshot(job.ID), nil
}

// Cancel 取消进行中的任务；任务在组合/日期边界退出。
func (m *JobManager) Cancel(id string) bool {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok || job.cancel == nil {
		return false
	}
	job.cancel()
	return true
}

// Get 返回任务快照。
func (m *JobManager) Get(id string) (*Job, bool) {
	job := m.snapshot(id)
	return job, job != nil
}

// List 按创建时间倒序返回全部任务快照。
func (m *JobManager) List() []*Job {
	m.mu.RLock()
	out := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		cp := *job
		out = append(out, &cp)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *JobManager) newJob(kind JobKind) *Job {
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return job
}

func (m *JobManager) setCancel(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	if job, ok := m.jobs[id]; ok {
		job.cancel = cancel
	}
	m.mu.Unlock()
}

func (m *JobManager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	if job, ok := m.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = time.Now()
	}
	m.mu.Unlock()
}

func (m *JobManager) snapshot(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}

func (m *JobManager) persistRun(res *backtest.Result) {
	if m.results == nil {
		return
	}
	if err := m.results.SaveRun(context.Background(), res); err != nil {
		logger.Warnf("[server] 回测结果落库失败: %v", err)
	}
}
