package workflow

import "errors"

// ErrGraphStalled indicates the dependency graph could not be fully grouped
// into parallel levels: remaining steps form a cycle or depend on steps that
// can never complete. Callers receive the partial grouping alongside it.
var ErrGraphStalled = errors.New("workflow graph stalled: cyclic or unsatisfiable dependencies")

// ReadySteps returns the IDs of steps that are pending and whose every
// dependency is completed, in declared order. A dependency that is failed or
// skipped blocks its dependents permanently.
func (s *State) ReadySteps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyStepsLocked()
}

// readyStepsLocked must be called with s.mu held.
func (s *State) readyStepsLocked() []string {
	var ready []string
	for _, id := range s.Order {
		step := s.Steps[id]
		if step.Status != StepStatusPending {
			continue
		}

		depsMet := true
		for _, dep := range step.DependsOn {
			d, ok := s.Steps[dep]
			if !ok {
				continue // unknown dependency does not block
			}
			if d.Status != StepStatusCompleted {
				depsMet = false
				break
			}
		}
		if depsMet {
			ready = append(ready, id)
		}
	}
	return ready
}

// ParallelLevels groups all pending steps into levels that can run
// concurrently: each round peels off the steps whose dependencies are either
// completed or scheduled in an earlier level. When a round makes no progress
// (a cycle, or a dependency that failed or was skipped) the partial grouping
// is returned together with ErrGraphStalled instead of silently truncating.
func (s *State) ParallelLevels() ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var remaining []string
	for _, id := range s.Order {
		if s.Steps[id].Status == StepStatusPending {
			remaining = append(remaining, id)
		}
	}

	scheduled := make(map[string]bool)
	var levels [][]string
	for len(remaining) > 0 {
		var level []string
		var next []string
		for _, id := range remaining {
			blocked := false
			for _, dep := range s.Steps[id].DependsOn {
				d, ok := s.Steps[dep]
				if !ok {
					continue // unknown dependency does not block
				}
				if scheduled[dep] || d.Status == StepStatusCompleted {
					continue
				}
				blocked = true
				break
			}
			if blocked {
				next = append(next, id)
			} else {
				level = append(level, id)
			}
		}

		if len(level) == 0 {
			return levels, ErrGraphStalled
		}

		for _, id := range level {
			scheduled[id] = true
		}
		levels = append(levels, level)
		remaining = next
	}
	return levels, nil
}

// RunningCount returns the number of steps currently running.
func (s *State) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, step := range s.Steps {
		if step.Status == StepStatusRunning {
			count++
		}
	}
	return count
}

// AllStepsTerminal reports whether every step is in a final state.
func (s *State) AllStepsTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, step := range s.Steps {
		if !step.Status.Terminal() {
			return false
		}
	}
	return true
}

// PendingSteps returns the IDs of steps still pending, in declared order.
func (s *State) PendingSteps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []string
	for _, id := range s.Order {
		if s.Steps[id].Status == StepStatusPending {
			pending = append(pending, id)
		}
	}
	return pending
}

// StepCounts returns the number of completed and failed steps.
func (s *State) StepCounts() (completed, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, step := range s.Steps {
		switch step.Status {
		case StepStatusCompleted:
			completed++
		case StepStatusFailed:
			failed++
		}
	}
	return completed, failed
}
