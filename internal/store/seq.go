package store

import "sync"

// seqGenerator hands out increasing integer ids per table.
type seqGenerator struct {
	mu       sync.Mutex
	perTable map[string]int64
}

func newSeqGenerator() *seqGenerator {
	return &seqGenerator{perTable: make(map[string]int64)}
}

func (g *seqGenerator) next(table string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.perTable[table]++
	return g.perTable[table]
}

// observe makes sure later ids for table are above id.
func (g *seqGenerator) observe(table string, id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id > g.perTable[table] {
		g.perTable[table] = id
	}
}
