// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/cropstream/internal/validation"
)

// Validate checks struct tags first, then the cross-field rules.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.validateCloud(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateLookup(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateCloud() error {
	switch c.Cloud.Provider {
	case ProviderAWS:
		if c.Cloud.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required when CLOUD_PROVIDER=aws")
		}
		if c.Cloud.AWSEndpoint != "" {
			if err := validateHTTPURL(c.Cloud.AWSEndpoint); err != nil {
				return fmt.Errorf("AWS_ENDPOINT is invalid: %w", err)
			}
		}
	case ProviderNATS:
		if !c.NATS.Enabled {
			return fmt.Errorf("NATS_ENABLED=true is required when CLOUD_PROVIDER=nats")
		}
		if c.NATS.ObjectBucket == "" {
			return fmt.Errorf("NATS_OBJECT_BUCKET is required when CLOUD_PROVIDER=nats")
		}
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return fmt.Errorf("NATS_URL must start with nats:// or tls://, got %q", c.NATS.URL)
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	if c.NATS.StreamName == "" {
		return fmt.Errorf("NATS_STREAM_NAME is required when NATS_ENABLED=true")
	}
	if c.NATS.RawSubject == "" {
		return fmt.Errorf("NATS_RAW_SUBJECT is required when NATS_ENABLED=true")
	}
	if c.NATS.DurableName == "" {
		return fmt.Errorf("NATS_DURABLE_NAME is required when NATS_ENABLED=true")
	}
	return nil
}

func (c *Config) validateLookup() error {
	if !c.Lookup.InMemory && c.Lookup.Path == "" {
		return fmt.Errorf("LOOKUP_PATH is required unless LOOKUP_IN_MEMORY=true")
	}
	if c.Lookup.CacheTTL < 0 {
		return fmt.Errorf("LOOKUP_CACHE_TTL must not be negative, got %v", c.Lookup.CacheTTL)
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT_WINDOW must be positive when HTTP_RATE_LIMIT is set")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is empty")
	}
	return nil
}
