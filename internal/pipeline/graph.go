package pipeline

import (
	"fmt"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

// BuildLevels groups stages by dependency level using Kahn's algorithm.
// Stages within a level have all predecessors in earlier levels and keep
// their declaration order. Duplicate names, unknown predecessors and cycles
// are rejected.
func BuildLevels(stages []Stage) ([][]string, error) {
	index := make(map[string]int, len(stages))
	for i, s := range stages {
		if s.Name == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build pipeline graph", fmt.Errorf("stage %d has no name", i))
		}
		if _, dup := index[s.Name]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build pipeline graph", fmt.Errorf("duplicate stage %q", s.Name))
		}
		index[s.Name] = i
	}

	inDegree := make([]int, len(stages))
	dependents := make([][]int, len(stages))
	for i, s := range stages {
		seen := make(map[string]bool, len(s.DependsOn))
		for _, dep := range s.DependsOn {
			from, ok := index[dep]
			if !ok {
				return nil, domain.WrapError(domain.ErrInvalidInput, "build pipeline graph", fmt.Errorf("stage %q depends on unknown stage %q", s.Name, dep))
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			inDegree[i]++
			dependents[from] = append(dependents[from], i)
		}
	}

	var queue []int
	for i := range stages {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	var levels [][]string
	visited := 0
	for len(queue) > 0 {
		level := make([]string, 0, len(queue))
		ready := make([]bool, len(stages))
		for _, i := range queue {
			level = append(level, stages[i].Name)
			for _, next := range dependents[i] {
				inDegree[next]--
				if inDegree[next] == 0 {
					ready[next] = true
				}
			}
		}
		levels = append(levels, level)
		visited += len(queue)

		queue = queue[:0]
		for i, ok := range ready {
			if ok {
				queue = append(queue, i)
			}
		}
	}

	if visited != len(stages) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build pipeline graph", fmt.Errorf("cycle detected, ordered %d of %d stages", visited, len(stages)))
	}
	return levels, nil
}
