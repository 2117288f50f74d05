package refresher

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// WebhookChatPlatform is a reference ChatPlatform built on an incoming
// webhook URL per channel: it covers the common case where a channel's
// outbound messages are themselves posted via a webhook, not a full
// chat-SDK client (spec.md §4.G's explicit collaborator boundary).
// Production deployments wire their own ChatPlatform against whatever
// transport their chat service exposes.
type WebhookChatPlatform struct {
	// WebhookURL resolves a channel id to its incoming webhook URL.
	WebhookURL func(channelID int64) string
}

type webhookMessage struct {
	Embeds []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func serversToEmbeds(servers []server.Server) []webhookEmbed {
	embeds := make([]webhookEmbed, len(servers))
	for i, s := range servers {
		embeds[i] = webhookEmbed{Title: s.Result.Name, Description: s.Address}
	}
	return embeds
}

func (w *WebhookChatPlatform) EditMessage(ctx context.Context, channelID, messageID int64, servers []server.Server) error {
	url := w.WebhookURL(channelID)
	if url == "" {
		return errs.New(errs.InvalidInput, "refresher: no webhook configured for channel", nil)
	}
	body, err := json.Marshal(webhookMessage{Embeds: serversToEmbeds(servers)})
	if err != nil {
		return err
	}
	// Discord-style webhook message edit: PATCH {webhook}/messages/{id}.
	_, err = probe.Shared().PostJSONWithHeaders(ctx, url+"/messages/"+strconv.FormatInt(messageID, 10), bytes.NewReader(body), map[string]string{"X-Http-Method-Override": "PATCH"})
	return err
}

func (w *WebhookChatPlatform) SendMessage(ctx context.Context, channelID int64, servers []server.Server) (int64, error) {
	url := w.WebhookURL(channelID)
	if url == "" {
		return 0, errs.New(errs.InvalidInput, "refresher: no webhook configured for channel", nil)
	}
	body, err := json.Marshal(webhookMessage{Embeds: serversToEmbeds(servers)})
	if err != nil {
		return 0, err
	}
	resp, err := probe.Shared().PostJSON(ctx, url+"?wait=true", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp, &decoded); err != nil {
		return 0, errs.New(errs.Protocol, "refresher: decode webhook send response", err)
	}
	return parseSnowflake(decoded.ID), nil
}

func (w *WebhookChatPlatform) DeleteMessage(ctx context.Context, channelID, messageID int64) error {
	url := w.WebhookURL(channelID)
	if url == "" {
		return nil
	}
	_, err := probe.Shared().PostJSONWithHeaders(ctx, url+"/messages/"+strconv.FormatInt(messageID, 10), nil, map[string]string{"X-Http-Method-Override": "DELETE"})
	return err
}

func parseSnowflake(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
