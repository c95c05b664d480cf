package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SignupForm shapes the direct-message payload for one game: which
// fields a map-code PM carries and the line templates around them.
type SignupForm struct {
	GameID      int      `json:"game_id"`
	CodeLabel   string   `json:"code_label"`
	Fields      []string `json:"fields,omitempty"`
	Intro       string   `json:"intro,omitempty"`
	CodeDisplay string   `json:"code_display,omitempty"` // e.g. "inline", "block"
}

// SignupFormLoader reads per-game form definitions from JSON files in a
// directory, caching each file after the first read.
type SignupFormLoader struct {
	dir   string
	mu    sync.RWMutex
	forms map[int]*SignupForm
}

func NewSignupFormLoader(dir string) *SignupFormLoader {
	return &SignupFormLoader{dir: dir, forms: make(map[int]*SignupForm)}
}

func (l *SignupFormLoader) Form(gameID int) (*SignupForm, error) {
	l.mu.RLock()
	form, ok := l.forms[gameID]
	l.mu.RUnlock()
	if ok {
		return form, nil
	}

	path := filepath.Join(l.dir, fmt.Sprintf("game_%d.json", gameID))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: game %d", ErrSignupFormNotFound, gameID)
		}
		return nil, fmt.Errorf("read signup form %s: %w", path, err)
	}

	form = &SignupForm{}
	if err := json.Unmarshal(data, form); err != nil {
		return nil, fmt.Errorf("parse signup form %s: %w", path, err)
	}
	if form.GameID == 0 {
		form.GameID = gameID
	}

	l.mu.Lock()
	l.forms[gameID] = form
	l.mu.Unlock()
	return form, nil
}

// Invalidate drops a cached form so the next lookup re-reads the file.
func (l *SignupFormLoader) Invalidate(gameID int) {
	l.mu.Lock()
	delete(l.forms, gameID)
	l.mu.Unlock()
}
