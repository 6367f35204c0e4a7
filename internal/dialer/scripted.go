package dialer

import (
	"context"
	"sync"

	"github.com/callforge/dialer-backend/internal/model"
)

// ScriptedPlacer answers placements from a per-contact script, falling back
// to a default outcome. Used by the seeder demo and by tests that need a
// deterministic provider.
type ScriptedPlacer struct {
	mu       sync.Mutex
	scripts  map[string][]Outcome
	Default  Outcome
	Attempts map[string]int
}

func NewScriptedPlacer() *ScriptedPlacer {
	return &ScriptedPlacer{
		scripts:  make(map[string][]Outcome),
		Default:  Outcome{Disposition: model.DispositionEndCallTool},
		Attempts: make(map[string]int),
	}
}

// Script queues outcomes for the contact identified by key (matched against
// the payload's phone_number). Once the queue drains, Default applies.
func (p *ScriptedPlacer) Script(key string, outcomes ...Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[key] = append(p.scripts[key], outcomes...)
}

func (p *ScriptedPlacer) PlaceCall(ctx context.Context, payload model.ContactPayload, workflowID int) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	key := payload["phone_number"]

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Attempts[key]++
	if queue := p.scripts[key]; len(queue) > 0 {
		out := queue[0]
		p.scripts[key] = queue[1:]
		return out, nil
	}
	return p.Default, nil
}

var _ CallPlacer = (*ScriptedPlacer)(nil)
