/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package runtime

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sap/portal-integration-runtime/internal/metrics"
	"github.com/sap/portal-integration-runtime/pkg/event"
)

// buildServer assembles the exposed HTTP surface: health, metrics, the
// resync trigger, and the registered live-event paths under /integration.
func (r *Runtime) buildServer() *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	if len(r.config.Server.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: r.config.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
		}))
	}

	router.Get("/health", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	router.Post("/resync", func(writer http.ResponseWriter, request *http.Request) {
		// the resync runs in the background; the response only confirms
		// that it was triggered
		go func() {
			if err := r.orchestrator.TriggerResync(r.baseContext(), event.TriggerRequest); err != nil {
				r.log.Error(err, "triggered resync finished with errors")
			}
		}()
		writer.WriteHeader(http.StatusAccepted)
	})

	router.Mount("/integration", http.StripPrefix("/integration", r.webhooks))

	port := 8000
	if r.config.Server.Port != nil {
		port = *r.config.Server.Port
	}
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
}

func triggerTypeOf(name string) event.TriggerType {
	switch name {
	case string(event.TriggerManual):
		return event.TriggerManual
	case string(event.TriggerRequest):
		return event.TriggerRequest
	default:
		return event.TriggerMachine
	}
}
