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

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"drv/config"
	"drv/debug"
	"drv/examples/ticker"
	"drv/logging"
	"drv/loop"
	"drv/stats"
)

var (
	configPath = flag.String("p", "conf", "Config file path")
	configFile = flag.String("c", "drv.yaml", "Config filename")
	help       = flag.Bool("h", false, "Show usage info")
)

const banner string = `
      _
   __| |_ __ __
  / _` + "`" + ` \ \ / /
 | (_| |\ V /
  \__,_| \_/

`

func parseCli() {
	flag.Parse()
	if *help {
		flag.Usage()
		os.Exit(0)
	}
}

func main() {
	parseCli()

	cfg, err := config.LoadConfig(path.Join(*configPath, *configFile))
	if err != nil {
		logging.Errorf("parse config file err: %v", err)
		return
	}

	if err := logging.Initialize(
		logging.WithPath(cfg.LogPath),
		logging.WithExpireDay(cfg.LogExpireDay),
		logging.WithLogLevel(cfg.LogLevel),
	); err != nil {
		logging.Errorf("failed to initialize logger, err: %s", err)
		return
	}

	fmt.Print(banner)
	fmt.Printf("drv started with pid: %d\n", syscall.Getpid())
	logging.Infof("drv started, pid: %d", syscall.Getpid())

	driverStats := stats.NewStats("drv")
	registry := debug.NewRegistry()

	var debugSrv *debug.Server
	if cfg.DebugPort > 0 {
		debugSrv = debug.NewServer(cfg.DebugPort, registry)
		debugSrv.Start()
		logging.Infof("debug surface listening on :%d", cfg.DebugPort)
	}

	if err := config.Watch(*configPath, *configFile, func(c *config.Config) {
		logging.Infof("config reloaded from %s", path.Join(*configPath, *configFile))
	}); err != nil {
		logging.Errorf("failed to watch config, err: %s", err)
	}

	timeout := time.Duration(cfg.PollTimeoutMS) * time.Millisecond
	drv, err := loop.NewDriver(timeout, loop.WithStats(driverStats), loop.WithRegistry(registry))
	if err != nil {
		logging.Errorf("failed to start driver: %s", err)
		return
	}

	tick, handle, err := ticker.Create(time.Second)
	if err != nil {
		logging.Errorf("failed to build ticker proxy: %s", err)
		_ = drv.Close()
		return
	}
	if err := drv.AttachNamed(tick, "ticker"); err != nil {
		logging.Errorf("failed to attach ticker proxy: %s", err)
		_ = drv.Close()
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for !handle.IsClosed() {
			if err := handle.Process(time.Second, func(tick ticker.Tick) error {
				logging.Debugf("%s (#%d)", tick.Label, tick.N)
				return nil
			}); err != nil {
				return
			}
		}
	}()

	<-sig
	logging.Infof("drv shutting down, pid: %d", syscall.Getpid())

	handle.Release()
	if err := drv.Close(); err != nil {
		logging.Errorf("driver close failed: %s", err)
	}
	if debugSrv != nil {
		if err := debugSrv.Close(); err != nil {
			logging.Errorf("debug server close failed: %s", err)
		}
	}

	logging.Infof("drv shutdown complete, pid: %d", syscall.Getpid())
}
