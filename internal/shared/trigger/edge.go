// Package trigger detecta bordas de subida de condições booleanas por chave.
// Uma chave dispara só quando passa de falso para verdadeiro; precisa voltar a falso para disparar de novo.
package trigger

import "sync"

// Signal é o valor atual da condição para uma chave
type Signal[K comparable] struct {
	Key K
	On  bool
}

type Edge[K comparable] struct {
	mu sync.Mutex
	on map[K]struct{}
}

func NewEdge[K comparable]() *Edge[K] {
	return &Edge[K]{on: make(map[K]struct{})}
}

// Set registra a condição de uma chave e devolve true na borda de subida
func (e *Edge[K]) Set(k K, cond bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setLocked(k, cond)
}

func (e *Edge[K]) setLocked(k K, cond bool) bool {
	_, was := e.on[k]
	if !cond {
		delete(e.on, k)
		return false
	}
	e.on[k] = struct{}{}
	return !was
}

// Update aplica um retrato completo: chaves ausentes de signals voltam a falso.
// Devolve as chaves que subiram, na ordem de signals
func (e *Edge[K]) Update(signals []Signal[K]) []K {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[K]struct{}, len(signals))
	var rising []K
	for _, s := range signals {
		seen[s.Key] = struct{}{}
		if e.setLocked(s.Key, s.On) {
			rising = append(rising, s.Key)
		}
	}
	for k := range e.on {
		if _, ok := seen[k]; !ok {
			delete(e.on, k)
		}
	}
	return rising
}

// Forget limpa as chaves que satisfazem pred
func (e *Edge[K]) Forget(pred func(K) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.on {
		if pred(k) {
			delete(e.on, k)
		}
	}
}

// Active informa quantas chaves estão em verdadeiro
func (e *Edge[K]) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.on)
}
