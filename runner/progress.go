package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// progressReporter periodically logs how far a dispatch has come and which
// items have been running the longest
type progressReporter struct {
	logger   log.Logger
	inflight *InFlight
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	total     int
	completed int
	started   time.Time
}

func startProgressReporter(logger log.Logger, inflight *InFlight, total int, interval time.Duration) *progressReporter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	p := &progressReporter{
		logger:   logger,
		inflight: inflight,
		ticker:   time.NewTicker(interval),
		stopCh:   make(chan struct{}),
		total:    total,
		started:  time.Now(),
	}

	go p.run()

	return p
}

func (p *progressReporter) run() {
	for {
		select {
		case <-p.ticker.C:
			p.report()
		case <-p.stopCh:
			return
		}
	}
}

// Completed marks one more item as done
func (p *progressReporter) Completed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
}

func (p *progressReporter) report() {
	p.mu.Lock()
	completed, total := p.completed, p.total
	p.mu.Unlock()

	running := p.inflight.Snapshot()

	var percentComplete float64
	if total > 0 {
		percentComplete = float64(completed) * 100.0 / float64(total)
	}

	p.logger.Info("Progress update",
		"completed", completed,
		"total", total,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"elapsed", time.Since(p.started).Truncate(time.Second),
		"numRunning", len(running),
		"longestRunning", formatRunning(running, maxRunningShown),
	)
}

// Stop stops the reporter. It is safe to call more than once.
func (p *progressReporter) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.stopCh)
	})
}

// formatRunning lists running items, longest running first
func formatRunning(running map[string]time.Time, maxShow int) string {
	if len(running) == 0 {
		return ""
	}

	type runningItem struct {
		name     string
		duration time.Duration
	}

	var items []runningItem
	now := time.Now()
	for name, startTime := range running {
		items = append(items, runningItem{
			name:     name,
			duration: now.Sub(startTime),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].duration == items[j].duration {
			return items[i].name < items[j].name
		}
		return items[i].duration > items[j].duration
	})

	var parts []string
	for i, item := range items {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", item.name, item.duration.Truncate(time.Second)))
	}

	if len(items) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(items)-maxShow))
	}

	return strings.Join(parts, ", ")
}
