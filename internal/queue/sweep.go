package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gogogo1024/campus-desk/internal/common"
)

// Sweeper periodically renumbers every office so queues re-converge after partial failures.
type Sweeper struct {
	cron    *cron.Cron
	m       *Manager
	timeout time.Duration
}

// NewSweeper schedules RenumberAll on spec, a six field cron expression (seconds first).
func NewSweeper(m *Manager, spec string) (*Sweeper, error) {
	s := &Sweeper{cron: cron.New(cron.WithSeconds()), m: m, timeout: 30 * time.Second}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("schedule renumber sweep %q: %w", spec, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	common.L().Info("renumber sweep started", zap.Int("entries", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	start := time.Now()
	res, err := s.m.RenumberAll(ctx)
	changed := 0
	for _, r := range res {
		changed += r.Renumbered
	}
	fields := []zap.Field{zap.Int("offices", len(res)), zap.Int("renumbered", changed), zap.Duration("took", time.Since(start))}
	if err != nil {
		common.L().Warn("renumber sweep incomplete", append(fields, zap.Error(err))...)
		return
	}
	common.L().Info("renumber sweep done", fields...)
}
