// Copyright 2025 Kadir Pekel
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

package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Loader reads, decodes, defaults, and validates configuration from a
// Provider, optionally re-running the whole pipeline whenever the
// Provider signals a change.
type Loader struct {
	provider Provider
	onChange func(*Config)
	logger   *slog.Logger
}

// LoaderOption configures a Loader at construction time.
type LoaderOption func(*Loader)

// WithOnChange registers a callback invoked with the freshly reloaded
// configuration after every change the Provider reports. The callback
// is skipped if the reload fails validation; the previous Config stays
// in effect and the error is logged.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) { l.onChange = fn }
}

// WithLogger overrides the default slog logger used for reload
// diagnostics.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader builds a Loader reading from p.
func NewLoader(p Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads, parses, decodes, defaults, and validates the current
// configuration document.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Watch blocks, reloading configuration on every change the Provider
// reports and invoking the registered OnChange callback. It returns
// when ctx is cancelled or the Provider's change channel closes.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("config: start watch: %w", err)
	}
	if changes == nil {
		l.logger.Info("config: provider does not support change notification")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			cfg, err := l.Load(ctx)
			if err != nil {
				l.logger.Error("config: reload failed, keeping previous configuration", "error", err)
				continue
			}
			l.logger.Info("config: reloaded")
			if l.onChange != nil {
				l.onChange(cfg)
			}
		}
	}
}
