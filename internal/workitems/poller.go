// Package workitems keeps a rendered page of a job's work-items table fresh
// while the job runs.
package workitems

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mohammed-shakir/harmony-core/internal/core/observability"
	"github.com/mohammed-shakir/harmony-core/internal/logger"
)

// EventTableLoaded is published after every load attempt.
const EventTableLoaded = "work-items-table-loaded"

const maxFragment = 4 << 20

// Sink receives each successfully fetched table fragment.
type Sink interface {
	Store(jobID string, page int, fragment []byte)
}

type Notifier interface {
	Publish(ctx context.Context, event, jobID string)
}

// Filter is sent only when set. DisallowStatus inverts the status filter.
type Filter struct {
	Table          string
	DisallowStatus bool
}

type Config struct {
	BaseURL  string
	Interval time.Duration
	Filter   *Filter
}

type Poller struct {
	log      *slog.Logger
	client   *http.Client
	base     *url.URL
	interval time.Duration
	filter   *Filter
	sink     Sink
	notify   Notifier
	after    func(time.Duration) <-chan time.Time // for tests
}

func New(log *slog.Logger, client *http.Client, cfg Config, sink Sink, notify Notifier) (*Poller, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("workitems: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		log:      log,
		client:   client,
		base:     u,
		interval: cfg.Interval,
		filter:   cfg.Filter,
		sink:     sink,
		notify:   notify,
		after:    time.After,
	}, nil
}

// Run loads the table immediately, then every interval while the backend
// reports the job as still running, then once more. It returns ctx.Err()
// if ctx ends first.
func (p *Poller) Run(ctx context.Context, jobID string, page, limit int) error {
	ctx = logger.WithComponent(logger.WithJobID(ctx, jobID), "workitems")

	running := p.loadAndNotify(ctx, "initial", jobID, page, limit, false)
	for running {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.after(p.interval):
		}
		running = p.loadAndNotify(ctx, "poll", jobID, page, limit, true)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.loadAndNotify(ctx, "final", jobID, page, limit, false)
	return nil
}

// Refresh performs one load outside the polling schedule, as after a
// job state change.
func (p *Poller) Refresh(ctx context.Context, jobID string, page, limit int) bool {
	ctx = logger.WithComponent(logger.WithJobID(ctx, jobID), "workitems")
	return p.loadAndNotify(ctx, "refresh", jobID, page, limit, false)
}

func (p *Poller) loadAndNotify(ctx context.Context, phase, jobID string, page, limit int, checkJobStatus bool) bool {
	ok := p.load(ctx, phase, jobID, page, limit, checkJobStatus)
	if p.notify != nil {
		p.notify.Publish(ctx, EventTableLoaded, jobID)
	}
	return ok
}

// TableURL builds the fragment url for one page.
func (p *Poller) TableURL(jobID string, page, limit int, checkJobStatus bool) string {
	u := p.base.JoinPath(jobID, "work-items")
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("checkJobStatus", strconv.FormatBool(checkJobStatus))
	if p.filter != nil {
		q.Set("tableFilter", p.filter.Table)
		disallow := ""
		if p.filter.DisallowStatus {
			disallow = "on"
		}
		q.Set("disallowStatus", disallow)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// load reports whether the backend answered 200, which means the job is
// still running.
func (p *Poller) load(ctx context.Context, phase, jobID string, page, limit int, checkJobStatus bool) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.TableURL(jobID, page, limit, checkJobStatus), nil)
	if err != nil {
		observability.IncPoll(phase, "error")
		p.log.ErrorContext(ctx, "build work-items request", "err", err)
		return false
	}
	req.Header.Set("Accept", "text/html")

	resp, err := p.client.Do(req)
	if err != nil {
		observability.IncPoll(phase, "error")
		p.log.WarnContext(ctx, "work-items fetch failed", "phase", phase, "err", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<10))
		observability.IncPoll(phase, "done")
		p.log.DebugContext(ctx, "work-items polling finished", "phase", phase, "status", resp.StatusCode)
		return false
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxFragment))
	if err != nil {
		observability.IncPoll(phase, "error")
		p.log.WarnContext(ctx, "read work-items body", "err", err)
		return false
	}
	if p.sink != nil {
		p.sink.Store(jobID, page, b)
	}
	observability.IncPoll(phase, "ok")
	return true
}
