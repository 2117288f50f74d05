// Package refresher implements the message-fetch/edit component of
// spec.md §4.G: grouping servers onto chat messages, editing them within
// a rate budget every tick, and resending on demand.
package refresher

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/repository"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// maxEmbedsPerMessage is the chat platform's per-message embed cap
// (spec.md §4.G).
const maxEmbedsPerMessage = 10

const editChunkSize = 25

// standaloneStyle is the set of style ids that force a server onto its
// own message regardless of grouping (spec.md §4.G "standalone style").
var standaloneStyle = map[string]bool{}

// RegisterStandaloneStyle marks a style id as standalone (called from
// style-package init()s; kept data-driven rather than hardcoded so new
// large-embed styles can opt in without editing this package).
func RegisterStandaloneStyle(styleID string) { standaloneStyle[styleID] = true }

// Message is the refresher's view of one outbound chat message: the
// ordered list of servers whose embeds it carries.
type Message struct {
	ID      int64
	Servers []server.Server
}

// ChatPlatform is the explicit boundary to the out-of-scope chat SDK
// collaborator (spec.md §1). Implementations perform the actual
// send/edit/delete against whatever transport backs a deployment.
type ChatPlatform interface {
	// EditMessage updates an existing message's embeds. Implementations
	// must classify forbidden/not-found responses as errs.Permission /
	// errs.NotFound so the refresher can evict/clear correctly.
	EditMessage(ctx context.Context, channelID, messageID int64, servers []server.Server) error
	// SendMessage posts a new message and returns its id.
	SendMessage(ctx context.Context, channelID int64, servers []server.Server) (int64, error)
	// DeleteMessage removes a bot-authored message.
	DeleteMessage(ctx context.Context, channelID, messageID int64) error
}

// Refresher drives the fetch/edit/resend responsibilities.
type Refresher struct {
	repo     repository.Repository
	platform ChatPlatform
	timeout  time.Duration
	log      *logger.Logger

	mu    sync.Mutex
	cache map[int64]*Message // message_id -> cached grouping
}

// New builds a Refresher. editTimeout is TASK_EDIT_MESSAGE_TIMEOUT.
func New(repo repository.Repository, platform ChatPlatform, editTimeout time.Duration, l *logger.Logger) *Refresher {
	if editTimeout <= 0 {
		editTimeout = 3 * time.Second
	}
	return &Refresher{repo: repo, platform: platform, timeout: editTimeout, log: l.Named("refresher"), cache: map[int64]*Message{}}
}

// Run groups every server with a non-null message_id by message, then
// edits each group's message at 25/s wall-clock (spec.md §4.G).
func (r *Refresher) Run(ctx context.Context) error {
	servers, err := r.repo.AllServers(ctx, repository.Filter{})
	if err != nil {
		return err
	}

	groups := r.group(servers)

	r.mu.Lock()
	for id, g := range groups {
		r.cache[id] = g
	}
	r.mu.Unlock()

	limiter := rate.NewLimiter(rate.Limit(editChunkSize), editChunkSize)
	var clearedIDs []int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for messageID, g := range groups {
		messageID, g := messageID, g
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			editCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			channelID := g.Servers[0].ChannelID
			err := r.platform.EditMessage(editCtx, channelID, messageID, g.Servers)
			if err == nil {
				return
			}

			r.evict(messageID)
			if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrPermission) {
				mu.Lock()
				clearedIDs = append(clearedIDs, messageID)
				mu.Unlock()
			} else {
				r.log.Warningf("refresher: edit message %d failed: %v", messageID, err)
			}
		}()
	}
	wg.Wait()

	if len(clearedIDs) > 0 {
		var toClear []server.Server
		for _, s := range servers {
			if s.MessageID != nil {
				for _, id := range clearedIDs {
					if *s.MessageID == id {
						s.MessageID = nil
						toClear = append(toClear, s)
					}
				}
			}
		}
		if len(toClear) > 0 {
			return r.repo.UpdateServersMessageID(ctx, toClear)
		}
	}
	return nil
}

// group builds message_id -> grouping, splitting a group whenever a
// standalone-style server is present or the cap of 10 embeds is reached.
func (r *Refresher) group(servers []server.Server) map[int64]*Message {
	byMessage := map[int64][]server.Server{}
	for _, s := range servers {
		if s.MessageID == nil {
			continue
		}
		byMessage[*s.MessageID] = append(byMessage[*s.MessageID], s)
	}

	out := map[int64]*Message{}
	for id, group := range byMessage {
		var capped []server.Server
		for _, s := range group {
			if standaloneStyle[s.StyleID] {
				capped = []server.Server{s}
				break
			}
			if len(capped) >= maxEmbedsPerMessage {
				break
			}
			capped = append(capped, s)
		}
		out[id] = &Message{ID: id, Servers: capped}
	}
	return out
}

func (r *Refresher) evict(messageID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, messageID)
}

// Resend purges all bot-authored messages in channelID older than
// afterMessageID, then sends fresh messages in chunks of up to 10 embeds
// (or 1 if standalone), recording each chunk's new message id across its
// servers (spec.md §4.G resend path — invoked by user commands, never by
// the scheduler).
func (r *Refresher) Resend(ctx context.Context, channelID int64, servers []server.Server, staleMessageIDs []int64) error {
	for _, id := range staleMessageIDs {
		if err := r.platform.DeleteMessage(ctx, channelID, id); err != nil {
			r.log.Warningf("refresher: delete stale message %d: %v", id, err)
		}
		r.evict(id)
	}

	for start := 0; start < len(servers); {
		end := start + maxEmbedsPerMessage
		if end > len(servers) {
			end = len(servers)
		}
		chunk := servers[start:end]
		if standaloneStyle[chunk[0].StyleID] {
			end = start + 1
			chunk = servers[start:end]
		}

		messageID, err := r.platform.SendMessage(ctx, channelID, chunk)
		if err != nil {
			return err
		}
		updated := make([]server.Server, len(chunk))
		for i, s := range chunk {
			s.MessageID = &messageID
			updated[i] = s
		}
		if err := r.repo.UpdateServersMessageID(ctx, updated); err != nil {
			return err
		}
		r.mu.Lock()
		r.cache[messageID] = &Message{ID: messageID, Servers: updated}
		r.mu.Unlock()

		start = end
	}
	return nil
}
