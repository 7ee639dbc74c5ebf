/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// StoredEntity is an entity as persisted by the fake portal, together
// with the user-agent label of its last write.
type StoredEntity struct {
	Entity     *types.Entity
	Datasource string
}

// RequestRecord captures one request for assertions.
type RequestRecord struct {
	Method    string
	Path      string
	UserAgent string
}

// FakePortal is an in-memory portal API served over httptest; it covers
// the endpoints the runtime consumes and records every request. All
// exported state is guarded by Lock.
type FakePortal struct {
	Server *httptest.Server

	Lock         sync.Mutex
	Entities     map[types.EntityKey]*StoredEntity
	AppConfig    *types.PortAppConfig
	ResyncStates []*portal.IntegrationState
	ActionRuns   []*types.ActionRun
	RunPatches   map[string][]*types.ActionRunPatch
	Requests     []RequestRecord

	// fault injection
	// entity identifiers whose deletion returns 409
	ConflictOnDelete map[string]bool
	// upserts referencing missing literal relation targets fail with the
	// missing-relation code unless stub creation is requested
	EnforceRelations bool
	// paths (exact match) answering with the given status once
	FailOnce map[string]int
}

// NewFakePortal starts the fake server.
func NewFakePortal() *FakePortal {
	p := &FakePortal{
		Entities:         map[types.EntityKey]*StoredEntity{},
		RunPatches:       map[string][]*types.ActionRunPatch{},
		ConflictOnDelete: map[string]bool{},
		FailOnce:         map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/access_token", p.handleToken)
	mux.HandleFunc("GET /v1/integration/{id}", p.handleGetIntegration)
	mux.HandleFunc("PATCH /v1/integration/{id}", p.handlePatchIntegration)
	mux.HandleFunc("PATCH /v1/integration/{id}/resync-state", p.handleResyncState)
	mux.HandleFunc("POST /v1/entities/search", p.handleSearch)
	mux.HandleFunc("POST /v1/blueprints/{blueprint}/entities/bulk", p.handleBulkUpsert)
	mux.HandleFunc("DELETE /v1/blueprints/{blueprint}/entities/{identifier}", p.handleDeleteEntity)
	mux.HandleFunc("DELETE /v1/blueprints/{blueprint}/all-entities", p.handleDeleteAll)
	mux.HandleFunc("GET /v1/migrations/{id}", p.handleGetMigration)
	mux.HandleFunc("GET /v1/actions/runs", p.handlePollRuns)
	mux.HandleFunc("PATCH /v1/actions/runs/{id}", p.handlePatchRun)
	p.Server = httptest.NewServer(p.record(mux))
	return p
}

func (p *FakePortal) Close() {
	p.Server.Close()
}

// NewClient returns a portal client speaking to this fake.
func (p *FakePortal) NewClient(integrationType string, identifier string) *portal.Client {
	return portal.NewClient(portal.ClientOptions{
		BaseURL:               p.Server.URL,
		ClientID:              "test-client",
		ClientSecret:          "test-secret",
		IntegrationType:       integrationType,
		IntegrationIdentifier: identifier,
		MaxRetries:            ref(1),
		RequestsPerSecond:     ref(1000.0),
	})
}

// EntityIdentifiers returns the stored identifiers of a blueprint, in no
// particular order.
func (p *FakePortal) EntityIdentifiers(blueprint string) []string {
	p.Lock.Lock()
	defer p.Lock.Unlock()
	var identifiers []string
	for key := range p.Entities {
		if key.Blueprint == blueprint {
			identifiers = append(identifiers, key.Identifier)
		}
	}
	return identifiers
}

// Seed stores an entity as if a previous pass of the given user agent had
// written it.
func (p *FakePortal) Seed(entity *types.Entity, userAgent string) {
	p.Lock.Lock()
	defer p.Lock.Unlock()
	p.Entities[entity.Key()] = &StoredEntity{Entity: entity, Datasource: userAgent}
}

func (p *FakePortal) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		p.Lock.Lock()
		p.Requests = append(p.Requests, RequestRecord{
			Method:    request.Method,
			Path:      request.URL.Path,
			UserAgent: request.Header.Get("User-Agent"),
		})
		status, failed := 0, false
		if code, ok := p.FailOnce[request.URL.Path]; ok {
			status, failed = code, true
			delete(p.FailOnce, request.URL.Path)
		}
		p.Lock.Unlock()
		if failed {
			http.Error(writer, `{"message":"injected failure"}`, status)
			return
		}
		next.ServeHTTP(writer, request)
	})
}

func (p *FakePortal) handleToken(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, map[string]any{"accessToken": "test-token", "expiresIn": 3600})
}

func (p *FakePortal) handleGetIntegration(writer http.ResponseWriter, request *http.Request) {
	p.Lock.Lock()
	defer p.Lock.Unlock()
	writeJSON(writer, map[string]any{
		"identifier": request.PathValue("id"),
		"config":     p.AppConfig,
	})
}

func (p *FakePortal) handlePatchIntegration(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		Config *types.PortAppConfig `json:"config"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	p.Lock.Lock()
	defer p.Lock.Unlock()
	if body.Config != nil {
		p.AppConfig = body.Config
	}
	writer.WriteHeader(http.StatusOK)
	writer.Write([]byte("{}"))
}

func (p *FakePortal) handleResyncState(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		State *portal.IntegrationState `json:"resyncState"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	p.Lock.Lock()
	defer p.Lock.Unlock()
	p.ResyncStates = append(p.ResyncStates, body.State)
	writer.WriteHeader(http.StatusOK)
	writer.Write([]byte("{}"))
}

func (p *FakePortal) handleSearch(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		Query map[string]any `json:"query"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	p.Lock.Lock()
	defer p.Lock.Unlock()
	var matches []*types.Entity
	for _, stored := range p.Entities {
		if matchesQuery(stored, body.Query) {
			matches = append(matches, stored.Entity)
		}
	}
	writeJSON(writer, map[string]any{"entities": matches})
}

// matchesQuery supports the rule subset the runtime issues: 'and'
// combinators over '$blueprint =', '$datasource contains', and equality
// on entity fields and properties.
func matchesQuery(stored *StoredEntity, query map[string]any) bool {
	rules, _ := query["rules"].([]any)
	for _, raw := range rules {
		rule, _ := raw.(map[string]any)
		property, _ := rule["property"].(string)
		operator, _ := rule["operator"].(string)
		value, _ := rule["value"].(string)
		var actual string
		switch property {
		case "$blueprint":
			actual = stored.Entity.Blueprint
		case "$datasource":
			actual = stored.Datasource
		case "$identifier":
			actual = stored.Entity.Identifier
		default:
			if v, ok := stored.Entity.Properties[property].(string); ok {
				actual = v
			}
		}
		switch operator {
		case "contains":
			if !strings.Contains(actual, value) {
				return false
			}
		default:
			if actual != value {
				return false
			}
		}
	}
	return true
}

func (p *FakePortal) handleBulkUpsert(writer http.ResponseWriter, request *http.Request) {
	blueprint := request.PathValue("blueprint")
	createMissing := request.URL.Query().Get("create_missing_related_entities") == "true"
	var body struct {
		Entities []*types.Entity `json:"entities"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	p.Lock.Lock()
	defer p.Lock.Unlock()
	result := portal.BulkUpsertResult{}
	for _, entity := range body.Entities {
		if p.EnforceRelations && !createMissing {
			if missing := p.missingRelation(entity); missing != "" {
				result.Failed = append(result.Failed, portal.BulkFailure{
					Identifier: entity.Identifier,
					Code:       portal.BulkFailureCodeMissingRelation,
					Message:    "related entity " + missing + " does not exist",
				})
				continue
			}
		}
		key := types.EntityKey{Blueprint: blueprint, Identifier: entity.Identifier}
		if _, ok := p.Entities[key]; ok {
			result.Updated = append(result.Updated, entity.Identifier)
		} else {
			result.Created = append(result.Created, entity.Identifier)
		}
		p.Entities[key] = &StoredEntity{Entity: entity, Datasource: request.Header.Get("User-Agent")}
	}
	writeJSON(writer, result)
}

func (p *FakePortal) missingRelation(entity *types.Entity) string {
	for _, target := range entity.RelationTargets() {
		found := false
		for key := range p.Entities {
			if key.Identifier == target {
				found = true
				break
			}
		}
		if !found {
			return target
		}
	}
	return ""
}

func (p *FakePortal) handleDeleteEntity(writer http.ResponseWriter, request *http.Request) {
	key := types.EntityKey{
		Blueprint:  request.PathValue("blueprint"),
		Identifier: request.PathValue("identifier"),
	}
	p.Lock.Lock()
	defer p.Lock.Unlock()
	if p.ConflictOnDelete[key.Identifier] {
		http.Error(writer, `{"message":"entity has dependents"}`, http.StatusConflict)
		return
	}
	if _, ok := p.Entities[key]; !ok {
		http.Error(writer, `{"message":"not found"}`, http.StatusNotFound)
		return
	}
	delete(p.Entities, key)
	writer.WriteHeader(http.StatusOK)
	writer.Write([]byte("{}"))
}

func (p *FakePortal) handleDeleteAll(writer http.ResponseWriter, request *http.Request) {
	blueprint := request.PathValue("blueprint")
	p.Lock.Lock()
	defer p.Lock.Unlock()
	for key := range p.Entities {
		if key.Blueprint == blueprint {
			delete(p.Entities, key)
		}
	}
	writeJSON(writer, map[string]any{"migrationId": "migration-1"})
}

func (p *FakePortal) handleGetMigration(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, portal.Migration{ID: request.PathValue("id"), Status: portal.MigrationStatusComplete})
}

func (p *FakePortal) handlePollRuns(writer http.ResponseWriter, request *http.Request) {
	p.Lock.Lock()
	defer p.Lock.Unlock()
	var pending []*types.ActionRun
	for _, run := range p.ActionRuns {
		if run.Status == types.ActionRunStatusPending {
			pending = append(pending, run)
		}
	}
	writeJSON(writer, map[string]any{"runs": pending})
}

func (p *FakePortal) handlePatchRun(writer http.ResponseWriter, request *http.Request) {
	id := request.PathValue("id")
	patch := &types.ActionRunPatch{}
	if err := json.NewDecoder(request.Body).Decode(patch); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	p.Lock.Lock()
	defer p.Lock.Unlock()
	p.RunPatches[id] = append(p.RunPatches[id], patch)
	for _, run := range p.ActionRuns {
		if run.ID == id && patch.Status != "" {
			run.Status = patch.Status
			run.UpdatedAt = time.Now()
		}
	}
	writer.WriteHeader(http.StatusOK)
	writer.Write([]byte("{}"))
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(value)
}

func ref[T any](x T) *T {
	return &x
}
