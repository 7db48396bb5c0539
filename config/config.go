// Copyright (c) 2024 The drv Authors
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

// Package config is the driver's YAML-driven configuration: the
// loop's own tunables (poll event capacity, poll timeout, debug port)
// plus logging options, with LogLevel validated against the logging
// package's level table.
package config

import (
	"io/ioutil"
	"path"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"drv/logging"
)

// Config is the driver's on-disk configuration.
type Config struct {
	// PollEventCapacity must be positive to pass validation. No other
	// code reads it: the poller sizes its readiness batch buffer on its
	// own (128 events, doubled whenever a poll fills it).
	PollEventCapacity int `yaml:"poll_event_capacity"`
	// PollTimeoutMS bounds how long RunOnce blocks per iteration.
	PollTimeoutMS int `yaml:"poll_timeout_ms"`
	// DebugPort serves the debug HTTP introspection surface; 0 disables it.
	DebugPort int `yaml:"debug_port"`

	LogPath      string `yaml:"log_path"`
	LogLevel     string `yaml:"log_level"`
	LogExpireDay int    `yaml:"log_expire_day"`
}

// LoadConfig reads and validates fileName.
func LoadConfig(fileName string) (*Config, error) {
	file, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file from %s", fileName)
	}
	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", fileName)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "config validate failed")
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, ok := logging.LevelMapperRev[c.LogLevel]; !ok {
		return errors.Errorf("unknown log level %s", c.LogLevel)
	}
	if c.PollEventCapacity <= 0 {
		return errors.Errorf("poll_event_capacity must be positive")
	}
	if c.PollTimeoutMS <= 0 {
		return errors.Errorf("poll_timeout_ms must be positive")
	}
	return nil
}

// Watch reloads the config at dir/name on every write/rename and hands
// the freshly parsed value to onReload. Parse failures are logged, not
// propagated: a bad edit must not crash a running driver.
func Watch(dir, name string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create config watcher")
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return errors.Wrapf(err, "failed to watch %s", dir)
	}

	target := path.Join(dir, name)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&fsnotify.Write == 0 && ev.Op&fsnotify.Rename == 0 {
					continue
				}
				cfg, err := LoadConfig(target)
				if err != nil {
					logging.Errorf("config: reload failed: %v", err)
					continue
				}
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Errorf("config: watcher error: %v", err)
			}
		}
	}()
	return nil
}
