package mobiauth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mobiauth/mobiauth/session"
)

// enforcementTask asks the enforcer to revoke every active session of an
// account except the one identified by keep.
type enforcementTask struct {
	accountID string
	keep      [32]byte
}

// sessionEnforcer applies the single-active-session policy off the login
// hot path. Login schedules a task after each session grant; a fixed pool
// of workers enumerates the account's other active sessions and revokes
// them. Scheduling never blocks: when the queue is full the task is
// dropped and counted, and the next login for the account schedules again.
type sessionEnforcer struct {
	cfg       EnforcementConfig
	sessions  *session.Store
	blacklist Blacklist
	metrics   *Metrics
	onRevoked func(accountID string)
	onFailure func(accountID string, err error)

	ch        chan enforcementTask
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

func newSessionEnforcer(cfg EnforcementConfig, sessions *session.Store, blacklist Blacklist, metrics *Metrics, onRevoked func(accountID string), onFailure func(accountID string, err error)) *sessionEnforcer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if onRevoked == nil {
		onRevoked = func(string) {}
	}
	if onFailure == nil {
		onFailure = func(string, error) {}
	}

	e := &sessionEnforcer{
		cfg:       cfg,
		sessions:  sessions,
		blacklist: blacklist,
		metrics:   metrics,
		onRevoked: onRevoked,
		onFailure: onFailure,
		ch:        make(chan enforcementTask, cfg.QueueSize),
		done:      make(chan struct{}),
	}

	e.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go e.run()
	}

	return e
}

func (e *sessionEnforcer) run() {
	defer e.wg.Done()

	for {
		select {
		case task := <-e.ch:
			e.process(task)
		case <-e.done:
			for {
				select {
				case task := <-e.ch:
					e.process(task)
				default:
					return
				}
			}
		}
	}
}

// Schedule enqueues an enforcement task without blocking the caller.
func (e *sessionEnforcer) Schedule(task enforcementTask) {
	if e == nil || e.closed.Load() {
		return
	}

	select {
	case e.ch <- task:
	case <-e.done:
	default:
		e.metrics.Inc(MetricEnforcementDropped)
	}
}

func (e *sessionEnforcer) process(task enforcementTask) {
	e.metrics.Inc(MetricEnforcementAttempted)

	ctx := context.Background()

	active, err := e.sessions.ActiveForAccount(ctx, task.accountID)
	if err != nil {
		e.metrics.Inc(MetricEnforcementFailed)
		e.onFailure(task.accountID, err)
		return
	}

	now := time.Now()
	for _, sess := range active {
		if sess.TokenHash == task.keep {
			continue
		}

		_, changed, err := e.sessions.Revoke(ctx, sess.TokenHash, now.Unix())
		if err != nil {
			e.metrics.Inc(MetricEnforcementFailed)
			e.onFailure(task.accountID, err)
			continue
		}

		if ttl := time.Until(time.Unix(sess.ExpiresAt, 0)); ttl > 0 {
			if err := e.blacklist.Add(ctx, sess.Token, ttl); err != nil {
				e.metrics.Inc(MetricEnforcementFailed)
				e.onFailure(task.accountID, err)
				continue
			}
		}

		// A sibling revoked concurrently, by logout or another worker,
		// counts for whoever flipped the flag, not for this task.
		if !changed {
			continue
		}
		e.metrics.Inc(MetricEnforcementRevoked)
		e.onRevoked(task.accountID)
	}
}

// Close stops accepting tasks and drains the queue before returning.
func (e *sessionEnforcer) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
		e.wg.Wait()
	})
}
