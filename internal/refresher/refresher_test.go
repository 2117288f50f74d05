package refresher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/repository"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	mu      sync.Mutex
	edits   map[int64][]server.Server
	editErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{edits: map[int64][]server.Server{}}
}

func (f *fakePlatform) EditMessage(ctx context.Context, channelID, messageID int64, servers []server.Server) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[messageID] = servers
	return nil
}

func (f *fakePlatform) SendMessage(ctx context.Context, channelID int64, servers []server.Server) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.edits) + 1000)
	f.edits[id] = servers
	return id, nil
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, channelID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.edits, messageID)
	return nil
}

func withMessageID(s server.Server, id int64) server.Server {
	s.MessageID = &id
	return s
}

func TestGroupSplitsAtTenEmbedsAndStandaloneStyle(t *testing.T) {
	r := New(nil, nil, time.Second, &logger.Logger{})

	var many []server.Server
	for i := 0; i < 12; i++ {
		many = append(many, withMessageID(server.Server{ID: int64(i), ChannelID: 1}, 1))
	}
	groups := r.group(many)
	require.Contains(t, groups, int64(1))
	assert.Len(t, groups[1].Servers, maxEmbedsPerMessage)

	RegisterStandaloneStyle("big-style")
	standalone := []server.Server{
		withMessageID(server.Server{ID: 1, ChannelID: 1, StyleID: "big-style"}, 2),
		withMessageID(server.Server{ID: 2, ChannelID: 1}, 2),
	}
	groups = r.group(standalone)
	require.Contains(t, groups, int64(2))
	assert.Len(t, groups[2].Servers, 1)
}

func TestRunEditsEveryGroupedMessage(t *testing.T) {
	m := repository.NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	srv, err := m.AddServer(ctx, server.Server{ChannelID: 1, GameID: "source", Address: "a", QueryPort: 1})
	require.NoError(t, err)
	msgID := int64(42)
	srv.MessageID = &msgID
	require.NoError(t, m.UpdateServersMessageID(ctx, []server.Server{srv}))

	platform := newFakePlatform()
	r := New(m, platform, time.Second, &logger.Logger{})
	require.NoError(t, r.Run(ctx))

	platform.mu.Lock()
	defer platform.mu.Unlock()
	assert.Contains(t, platform.edits, int64(42))
}

func TestRunClearsMessageIDOnNotFound(t *testing.T) {
	m := repository.NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	srv, err := m.AddServer(ctx, server.Server{ChannelID: 1, GameID: "source", Address: "a", QueryPort: 1})
	require.NoError(t, err)
	msgID := int64(42)
	srv.MessageID = &msgID
	require.NoError(t, m.UpdateServersMessageID(ctx, []server.Server{srv}))

	platform := newFakePlatform()
	platform.editErr = errs.ErrNotFound
	r := New(m, platform, time.Second, &logger.Logger{})
	require.NoError(t, r.Run(ctx))

	all, err := m.AllServers(ctx, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].MessageID)
}

// TestRunClearsMessageIDOnPermissionDenied covers spec.md §7's requirement
// that a forbidden edit (HTTP 403/401, surfaced as errs.Permission) clears
// message_id in the DB just like a not-found edit does, so the next
// refresh republishes instead of retrying a message the bot can no longer
// edit.
func TestRunClearsMessageIDOnPermissionDenied(t *testing.T) {
	m := repository.NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	srv, err := m.AddServer(ctx, server.Server{ChannelID: 1, GameID: "source", Address: "a", QueryPort: 1})
	require.NoError(t, err)
	msgID := int64(42)
	srv.MessageID = &msgID
	require.NoError(t, m.UpdateServersMessageID(ctx, []server.Server{srv}))

	platform := newFakePlatform()
	platform.editErr = errs.ErrPermission
	r := New(m, platform, time.Second, &logger.Logger{})
	require.NoError(t, r.Run(ctx))

	all, err := m.AllServers(ctx, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].MessageID)
}

func TestResendSendsInChunksAndRecordsMessageIDs(t *testing.T) {
	m := repository.NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	var servers []server.Server
	for i := 0; i < 15; i++ {
		srv, err := m.AddServer(ctx, server.Server{ChannelID: 1, GameID: "source", Address: string(rune('a' + i)), QueryPort: i})
		require.NoError(t, err)
		servers = append(servers, srv)
	}

	platform := newFakePlatform()
	r := New(m, platform, time.Second, &logger.Logger{})
	require.NoError(t, r.Resend(ctx, 1, servers, nil))

	all, err := m.AllServers(ctx, repository.Filter{})
	require.NoError(t, err)
	seen := map[int64]bool{}
	for _, s := range all {
		require.NotNil(t, s.MessageID)
		seen[*s.MessageID] = true
	}
	assert.Len(t, seen, 2) // 15 servers, cap 10 -> two messages
}
