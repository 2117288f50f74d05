// Package alert implements the hysteresis-gated offline/online webhook
// notifier of spec.md §4.F.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/repository"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// chunkSize and chunkPeriod bound the aggregate webhook send rate so it
// never exceeds the chat platform's published budget (spec.md §4.F).
const (
	chunkSize   = 25
	chunkPeriod = time.Second
)

// webhookStyleKey is the style_data key an alert-eligible server's webhook
// URL is read from.
const webhookStyleKey = "_alert_webhook_url"

// Engine evaluates alert eligibility once per tick and POSTs webhook
// payloads for every eligible transition.
type Engine struct {
	repo   repository.Repository
	period time.Duration
	log    *logger.Logger
}

// New builds an Engine. period is the scheduler's tick period
// (TASK_QUERY_SERVER), used to derive the fail-count threshold.
func New(repo repository.Repository, period time.Duration, l *logger.Logger) *Engine {
	return &Engine{repo: repo, period: period, log: l.Named("alert")}
}

// Threshold returns max(2, floor(120/period_seconds)) per spec.md §4.F.
func (e *Engine) Threshold() int {
	seconds := e.period.Seconds()
	if seconds <= 0 {
		seconds = 1
	}
	t := int(math.Floor(120 / seconds))
	if t < 2 {
		t = 2
	}
	return t
}

// Run evaluates every server for alert eligibility and sends webhook
// payloads for each, chunked to 25/s wall-clock.
func (e *Engine) Run(ctx context.Context) error {
	servers, err := e.repo.AllServers(ctx, repository.Filter{})
	if err != nil {
		return err
	}

	threshold := e.Threshold()
	var eligible []server.Server
	var updated []server.Server
	for _, s := range servers {
		switch {
		case !s.Status && s.Result.FailCount() == threshold && !s.Result.SentOfflineAlert():
			s.Result.SetSentOfflineAlert(true)
			eligible = append(eligible, s)
			updated = append(updated, s)
		case s.Status && s.Result.SentOfflineAlert():
			s.Result.SetSentOfflineAlert(false)
			eligible = append(eligible, s)
			updated = append(updated, s)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	e.send(ctx, eligible)

	targets := make([]repository.DistinctProbeTarget, len(updated))
	for i, s := range updated {
		targets[i] = repository.DistinctProbeTarget{GameID: s.GameID, Address: s.Address, QueryPort: s.QueryPort, QueryExtra: s.QueryExtra, Result: s.Result, Status: s.Status}
	}
	return e.repo.UpdateServers(ctx, targets)
}

func (e *Engine) send(ctx context.Context, servers []server.Server) {
	limiter := rate.NewLimiter(rate.Every(chunkPeriod/chunkSize), chunkSize)
	var wg sync.WaitGroup
	for _, s := range servers {
		url := s.StyleData[webhookStyleKey]
		if url == "" {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		wg.Add(1)
		go func(s server.Server, url string) {
			defer wg.Done()
			if err := e.post(ctx, url, s); err != nil {
				e.log.Warningf("alert: webhook post for %s:%d failed: %v", s.Address, s.QueryPort, err)
			}
		}(s, url)
	}
	wg.Wait()
}

// alertPayload is the webhook body: a Discord-shaped embed plus an
// optional plain content line, matching
// original_source/discordgsm/styles/*.py's alert embed builders.
type alertPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

func (e *Engine) post(ctx context.Context, url string, s server.Server) error {
	status := "offline"
	color := 0xE74C3C
	if s.Status {
		status = "online"
		color = 0x2ECC71
	}
	payload := alertPayload{
		Embeds: []embed{{
			Title:       s.Result.Name,
			Description: s.Address + " is now " + status,
			Color:       color,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = probe.Shared().PostJSON(ctx, url, bytes.NewReader(body))
	return err
}
