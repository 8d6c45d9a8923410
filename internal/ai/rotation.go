package ai

import "sync"

// RotationPolicy is an ordered credential list with a cursor. The cursor only
// moves when a request made with the current credential fails.
type RotationPolicy struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

func NewRotationPolicy(keys []string) (*RotationPolicy, error) {
	if len(keys) == 0 {
		return nil, ErrNoCredentials
	}
	return &RotationPolicy{keys: append([]string(nil), keys...)}, nil
}

// Current returns the credential to use and its position.
func (p *RotationPolicy) Current() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[p.cursor], p.cursor
}

// Advance moves past the credential at position failed. If another request
// already moved the cursor away from it, the cursor is left alone so two
// concurrent failures on one key do not skip the next one.
func (p *RotationPolicy) Advance(failed int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor == failed {
		p.cursor = (p.cursor + 1) % len(p.keys)
	}
	return p.cursor
}

func (p *RotationPolicy) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *RotationPolicy) Len() int { return len(p.keys) }
