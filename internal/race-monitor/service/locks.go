package service

import "sync"

// raceLocks serializa leitura+gravação do estado de uma mesma corrida.
// Entradas sem usuários são removidas para o mapa não crescer com corridas antigas
type raceLocks struct {
	mu sync.Mutex
	m  map[int64]*raceLock
}

type raceLock struct {
	mu   sync.Mutex
	refs int
}

func (l *raceLocks) lock(id int64) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[int64]*raceLock)
	}
	rl, ok := l.m[id]
	if !ok {
		rl = &raceLock{}
		l.m[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

