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
	"fmt"
	"strings"
	"time"

	"github.com/koron/go-ssdp"
	"github.com/rs/zerolog"
	"rokubridge/internal/logger"
)

const (
	// SearchTarget identifies Roku devices in SSDP responses
	SearchTarget = "roku:ecp"

	// DefaultDiscoveryTimeout is how long responses are collected
	DefaultDiscoveryTimeout = 3 * time.Second
)

// searchFunc matches ssdp.Search
type searchFunc func(searchType string, waitSec int, localAddr string) ([]ssdp.Service, error)

// Discoverer finds Roku devices with an SSDP M-SEARCH broadcast
type Discoverer struct {
	search  searchFunc
	timeout time.Duration
	logger  zerolog.Logger
}

// NewDiscoverer creates a discoverer that collects responses for timeout
func NewDiscoverer(timeout time.Duration) *Discoverer {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	return &Discoverer{
		search:  ssdp.Search,
		timeout: timeout,
		logger:  logger.GetLogger("ssdp"),
	}
}

type searchResult struct {
	services []ssdp.Service
	err      error
}

// Discover broadcasts one search and returns the normalized base URL of every
// responding device, in response order without duplicates
func (d *Discoverer) Discover(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discovery cancelled: %w", err)
	}

	// ssdp.Search blocks for the whole wait window
	results := make(chan searchResult, 1)
	go func() {
		services, err := d.search(SearchTarget, waitSeconds(d.timeout), "")
		results <- searchResult{services: services, err: err}
	}()

	var result searchResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("discovery cancelled: %w", ctx.Err())
	case result = <-results:
	}

	if result.err != nil {
		return nil, fmt.Errorf("failed to search for devices: %w", result.err)
	}

	return d.addresses(result.services), nil
}

func (d *Discoverer) addresses(services []ssdp.Service) []string {
	var addresses []string
	seen := make(map[string]bool)

	for _, service := range services {
		if !isRoku(service) || service.Location == "" {
			continue
		}

		address, err := NormalizeAddress(service.Location)
		if err != nil {
			d.logger.Debug().
				Str("usn", service.USN).
				Str("location", service.Location).
				Err(err).
				Msg("Ignoring search response with bad location")
			continue
		}

		if seen[address] {
			continue
		}
		seen[address] = true
		addresses = append(addresses, address)

		d.logger.Debug().
			Str("address", address).
			Msg("Device responded to search")
	}

	return addresses
}

func isRoku(service ssdp.Service) bool {
	return strings.EqualFold(service.Type, SearchTarget) || strings.Contains(service.USN, SearchTarget)
}

// waitSeconds converts the collection window to the MX value, at least one second
func waitSeconds(timeout time.Duration) int {
	sec := int((timeout + time.Second - 1) / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}
