package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&assettocorsaStrategy{})
}

// assettocorsaStrategy queries Assetto Corsa's two plain HTTP/JSON
// endpoints (original_source/.../assettocorsa.py) concurrently: /INFO for
// server metadata and /JSON for live car/driver state.
type assettocorsaStrategy struct{}

func (assettocorsaStrategy) Name() string                                  { return "assettocorsa" }
func (assettocorsaStrategy) PreQueryRequired() bool                        { return false }
func (assettocorsaStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (assettocorsaStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	client := probe.Shared()
	var infoBody, jsonBody []byte
	var infoErr, jsonErr error

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		infoBody, infoErr = client.Get(ctx, fmt.Sprintf("http://%s:%d/INFO", address, port))
	}()
	go func() {
		defer wg.Done()
		jsonBody, jsonErr = client.Get(ctx, fmt.Sprintf("http://%s:%d/JSON", address, port))
	}()
	wg.Wait()
	if infoErr != nil {
		return server.Probe{}, infoErr
	}
	if jsonErr != nil {
		return server.Probe{}, jsonErr
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var info struct {
		Name       string `json:"name"`
		Track      string `json:"track"`
		Pass       bool   `json:"pass"`
		MaxClients int    `json:"maxclients"`
		Port       int    `json:"port"`
	}
	if err := json.Unmarshal(infoBody, &info); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "assettocorsa: decode INFO", err)
	}

	var state struct {
		Cars []struct {
			DriverName  string `json:"DriverName"`
			IsConnected bool   `json:"IsConnected"`
		} `json:"Cars"`
	}
	if err := json.Unmarshal(jsonBody, &state); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "assettocorsa: decode JSON", err)
	}

	var players []server.Player
	for _, car := range state.Cars {
		if car.IsConnected {
			players = append(players, server.Player{Name: car.DriverName})
		}
	}

	return server.Probe{
		Name:       info.Name,
		Map:        info.Track,
		Password:   info.Pass,
		MaxPlayers: info.MaxClients,
		NumPlayers: len(players),
		Players:    players,
		Connect:    probe.AddrPort(address, info.Port),
		PingMS:     pingMS,
	}, nil
}
