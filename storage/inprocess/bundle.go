package inprocess

import "github.com/cortexmem/engine/memory"

// NewBundle builds a complete memory.RepoBundle backed entirely by the
// in-process repos — the default provider and the resilient fallback
// target for every networked driver.
func NewBundle() memory.RepoBundle {
	return memory.RepoBundle{
		Working:    NewWorkingRepo(),
		Semantic:   NewSemanticRepo(),
		Episodic:   NewEpisodicRepo(),
		Procedural: NewProceduralRepo(),
	}
}
