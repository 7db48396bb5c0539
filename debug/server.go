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

package debug

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drv/logging"
)

// Server is the optional debug HTTP surface: pprof, prometheus metrics,
// and the proxy-name registry, served on one gin engine.
type Server struct {
	registry *Registry
	httpSrv  *http.Server
}

// NewServer builds a gin engine serving /debug/pprof/*, /metrics, and
// /debug/proxies on port, backed by registry.
func NewServer(port int, registry *Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	pprof.Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/debug/proxies", func(c *gin.Context) {
		c.JSON(http.StatusOK, registry.Snapshot())
	})

	return &Server{
		registry: registry,
		httpSrv:  &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: r},
	}
}

// Start runs the server in its own fire-and-forget goroutine. Errors
// other than a clean Close are logged.
func (s *Server) Start() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("debug: http server exited: %v", err)
		}
	}()
}

// Close shuts the server down.
func (s *Server) Close() error {
	return s.httpSrv.Shutdown(context.Background())
}
