package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job 周期任务
type Job struct {
	Name      string
	Interval  time.Duration
	Immediate bool // 启动后立即执行一次
	Align     bool // 对齐到 Interval 的整数倍时间点（如每 4 小时的整点）
	Run       func(ctx context.Context)
}

// Scheduler 调度器：每个任务一个协程，任务内部串行执行
type Scheduler struct {
	jobs []Job
	now  func() time.Time
	wg   sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Now}
}

// Add 注册任务，必须在 Start 之前调用
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("任务 %s 未设置执行函数", job.Name)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("任务 %s 的周期必须大于 0", job.Name)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start 启动所有任务，ctx 取消后各任务在当前一轮结束后退出
func (s *Scheduler) Start(ctx context.Context) {
	zap.L().Info("🚀 调度器启动中...", zap.Int("jobs", len(s.jobs)))

	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
}

// Wait 等待所有任务退出
func (s *Scheduler) Wait() {
	s.wg.Wait()
	zap.L().Info("📴 调度器已停止")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	if job.Immediate {
		s.runOnce(ctx, job)
	}

	for {
		wait := job.Interval
		if job.Align {
			next := NextAligned(s.now(), job.Interval)
			wait = next.Sub(s.now())
			zap.L().Debug("⏰ 下次执行时间",
				zap.String("job", job.Name),
				zap.String("at", next.Format("15:04:05")),
				zap.Duration("wait", wait))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.runOnce(ctx, job)
	}
}

// runOnce 执行一轮任务，任务 panic 只记录日志
func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("任务执行异常",
				zap.String("job", job.Name),
				zap.Any("panic", r))
		}
	}()

	start := s.now()
	job.Run(ctx)
	zap.L().Debug("任务执行完成",
		zap.String("job", job.Name),
		zap.Duration("elapsed", s.now().Sub(start)))
}

// NextAligned 计算 now 之后第一个 period 整数倍的时间点（按本地时区的当天零点对齐）
func NextAligned(now time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return now
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsed := now.Sub(midnight)
	next := midnight.Add((elapsed/period + 1) * period)
	return next
}
