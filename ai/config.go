// Copyright 2025 Poiesic Systems
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

package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	defaultHost           = "http://localhost:11434/v1"
	defaultEmbeddingModel = "embeddinggemma"
	defaultExtractorModel = "qwen2.5:7b"
	defaultMaxAttempts    = 3
)

var validate = validator.New()

// Config points the embedding and extraction clients at their servers.
// Both may share one host; local servers accept the API key "none".
type Config struct {
	EmbeddingHost  string `yaml:"embedding_host" validate:"required,url"`
	ExtractorHost  string `yaml:"extractor_host" validate:"required,url"`
	EmbeddingModel string `yaml:"embedding_model" validate:"required"`
	ExtractorModel string `yaml:"extractor_model" validate:"required"`
	APIKey         string `yaml:"api_key"`

	// MaxAttempts bounds how often an unparseable extraction reply is
	// requested again.
	MaxAttempts int `yaml:"max_attempts" validate:"min=1,max=10"`
}

type ConfigOption func(*Config)

func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) { c.EmbeddingHost = host }
}

func WithExtractorHost(host string) ConfigOption {
	return func(c *Config) { c.ExtractorHost = host }
}

// WithHost points both clients at the same server.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ExtractorHost = host
	}
}

func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) { c.EmbeddingModel = model }
}

func WithExtractorModel(model string) ConfigOption {
	return func(c *Config) { c.ExtractorModel = model }
}

func WithAPIKey(key string) ConfigOption {
	return func(c *Config) { c.APIKey = key }
}

func WithMaxAttempts(n int) ConfigOption {
	return func(c *Config) { c.MaxAttempts = n }
}

// DefaultConfig targets a local Ollama instance.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  defaultHost,
		ExtractorHost:  defaultHost,
		EmbeddingModel: defaultEmbeddingModel,
		ExtractorModel: defaultExtractorModel,
		APIKey:         "none",
		MaxAttempts:    defaultMaxAttempts,
	}
}

// NewConfig applies opts over DefaultConfig.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize appends the /v1 path OpenAI-compatible servers expect and fills
// in a placeholder API key.
func (c *Config) Normalize() {
	c.EmbeddingHost = withAPIPath(c.EmbeddingHost)
	c.ExtractorHost = withAPIPath(c.ExtractorHost)
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

func withAPIPath(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimRight(host, "/") + "/v1"
}

// Validate normalizes c and checks it.
func (c *Config) Validate() error {
	c.Normalize()
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = fmt.Sprintf("%s must satisfy %q", e.Field(), e.Tag())
	}
	return fmt.Errorf("ai config: %s", strings.Join(fields, ", "))
}
