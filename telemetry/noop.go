// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package telemetry

import "net/http"

// noopTelemetry implements a no operations telemetry service.
type noopTelemetry struct{}

func defaultNoopTelemetry() Telemetry { return &noopTelemetry{} }

func (n *noopTelemetry) GetOrCreateCountMeter(string) CountMeter { return &noopMeter{} }

func (n *noopTelemetry) GetOrCreateCountVecMeter(string, []string) CountVecMeter {
	return &noopMeter{}
}

func (n *noopTelemetry) GetOrCreateGaugeMeter(string) GaugeMeter { return &noopMeter{} }

func (n *noopTelemetry) GetOrCreateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	})
}

type noopMeter struct{}

func (m *noopMeter) Add(int64)                            {}
func (m *noopMeter) Set(int64)                            {}
func (m *noopMeter) AddWithLabel(int64, map[string]string) {}
