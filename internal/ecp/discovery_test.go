// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ecp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koron/go-ssdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rokuService(location string) ssdp.Service {
	return ssdp.Service{
		Type:     SearchTarget,
		USN:      "uuid:roku:ecp:X004000AW",
		Location: location,
		Server:   "Roku/9.4.0 UPnP/1.0 Roku/9.4.0",
	}
}

type fakeSearch struct {
	mu       sync.Mutex
	services []ssdp.Service
	err      error
	block    chan struct{}
	target   string
	waitSec  int
}

func (f *fakeSearch) search(searchType string, waitSec int, localAddr string) ([]ssdp.Service, error) {
	f.mu.Lock()
	f.target, f.waitSec = searchType, waitSec
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return f.services, f.err
}

func newTestDiscoverer(timeout time.Duration, f *fakeSearch) *Discoverer {
	d := NewDiscoverer(timeout)
	d.search = f.search
	return d
}

func TestDiscoverer_Discover(t *testing.T) {
	t.Run("collects and deduplicates responses", func(t *testing.T) {
		f := &fakeSearch{services: []ssdp.Service{
			rokuService("http://192.168.1.5:8060/"),
			rokuService("http://192.168.1.6:8060/"),
			rokuService("http://192.168.1.5:8060/"),
			{Type: "upnp:rootdevice", USN: "uuid:tv::upnp:rootdevice", Location: "http://192.168.1.9:80/"},
			rokuService(""),
			rokuService("not a url"),
		}}

		addresses, err := newTestDiscoverer(300*time.Millisecond, f).Discover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"http://192.168.1.5:8060", "http://192.168.1.6:8060"}, addresses)
		assert.Equal(t, SearchTarget, f.target)
		assert.Equal(t, 1, f.waitSec)
	})

	t.Run("matches on USN when ST differs", func(t *testing.T) {
		f := &fakeSearch{services: []ssdp.Service{
			{Type: "upnp:rootdevice", USN: "uuid:roku:ecp:YJ00AB", Location: "http://10.0.0.2:8060/"},
		}}

		addresses, err := newTestDiscoverer(time.Second, f).Discover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"http://10.0.0.2:8060"}, addresses)
	})

	t.Run("returns empty when nobody answers", func(t *testing.T) {
		addresses, err := newTestDiscoverer(100*time.Millisecond, &fakeSearch{}).Discover(context.Background())
		require.NoError(t, err)
		assert.Empty(t, addresses)
	})

	t.Run("search failure", func(t *testing.T) {
		f := &fakeSearch{err: errors.New("no multicast interface")}

		_, err := newTestDiscoverer(time.Second, f).Discover(context.Background())
		assert.ErrorContains(t, err, "no multicast interface")
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newTestDiscoverer(5*time.Second, &fakeSearch{}).Discover(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("stops waiting when cancelled mid search", func(t *testing.T) {
		f := &fakeSearch{block: make(chan struct{})}
		defer close(f.block)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := newTestDiscoverer(5*time.Second, f).Discover(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWaitSeconds(t *testing.T) {
	assert.Equal(t, 1, waitSeconds(0))
	assert.Equal(t, 1, waitSeconds(100*time.Millisecond))
	assert.Equal(t, 3, waitSeconds(3*time.Second))
	assert.Equal(t, 3, waitSeconds(2500*time.Millisecond))
}
