package pipeline

// tally counts per-forecast-hour outcomes for one stage.
type tally struct {
	completed int
	failed    int
	lastErr   error
}

func (t *tally) ok() { t.completed++ }

func (t *tally) fail(err error) {
	t.failed++
	t.lastErr = err
}

// allFailed reports whether the stage saw work and none of it succeeded.
func (t *tally) allFailed() bool {
	return t.completed == 0 && t.failed > 0
}
