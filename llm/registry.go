package llm

import (
	"sync/atomic"

	"github.com/SaiNageswarS/go-collection-boot/ds"
)

type ModelCandidate struct {
	Identifier string `json:"identifier"`
	IsPrimary  bool   `json:"isPrimary"`
}

// ModelRegistry holds the configured models and the currently active one.
// The active model is process-wide: once a backup answers, later requests
// start with it until the process restarts or Reset is called.
type ModelRegistry struct {
	primary string
	backups []string
	params  GenerationParams
	active  atomic.Pointer[string]
}

func NewModelRegistry(primary string, backups []string, params GenerationParams) *ModelRegistry {
	r := &ModelRegistry{
		primary: primary,
		backups: dedupe(backups),
		params:  params,
	}
	r.active.Store(&primary)
	return r
}

func (r *ModelRegistry) CurrentActive() string {
	return *r.active.Load()
}

// SetActive is last-writer-wins under concurrent fallbacks.
func (r *ModelRegistry) SetActive(model string) {
	r.active.Store(&model)
}

func (r *ModelRegistry) Reset() {
	primary := r.primary
	r.active.Store(&primary)
}

func (r *ModelRegistry) Primary() string { return r.primary }

func (r *ModelRegistry) Params() GenerationParams { return r.params }

// Candidates lists the attempt order for one request: the active model,
// then every configured backup other than it.
func (r *ModelRegistry) Candidates() []string {
	active := r.CurrentActive()
	seen := ds.NewSet[string]()
	seen.Add(active)

	candidates := []string{active}
	for _, m := range r.backups {
		if seen.Contains(m) {
			continue
		}
		seen.Add(m)
		candidates = append(candidates, m)
	}
	return candidates
}

// Models lists the primary followed by the backups.
func (r *ModelRegistry) Models() []ModelCandidate {
	models := []ModelCandidate{{Identifier: r.primary, IsPrimary: true}}
	for _, m := range r.backups {
		if m == r.primary {
			continue
		}
		models = append(models, ModelCandidate{Identifier: m})
	}
	return models
}

func dedupe(models []string) []string {
	seen := ds.NewSet[string]()
	out := make([]string, 0, len(models))
	for _, m := range models {
		if m == "" || seen.Contains(m) {
			continue
		}
		seen.Add(m)
		out = append(out, m)
	}
	return out
}
