package mcmc

import (
	"os"
	"os/signal"
	"syscall"
)

// Sampler is the root do-all move group plus the statistics and the
// top-level iteration loop.
type Sampler struct {
	*MoveAll
	Stats Stats
	sig   chan os.Signal
}

// NewSampler creates a sampler.
func NewSampler(name string) *Sampler {
	return &Sampler{
		MoveAll: NewMoveAll(name),
		Stats:   make(Stats),
	}
}

// WatchSignals installs interrupt handlers: SIGINT and SIGTERM make
// the sampler finish the current move and return; SIGXCPU is ignored
// so the chain does not die mid-move on a CPU limit.
func (s *Sampler) WatchSignals() {
	s.sig = make(chan os.Signal, 1)
	signal.Notify(s.sig, os.Interrupt, syscall.SIGTERM)
	signal.Ignore(syscall.SIGXCPU)
}

func (s *Sampler) interrupted() bool {
	if s.sig == nil {
		return false
	}
	select {
	case sg := <-s.sig:
		log.Warningf("Received signal %v, finishing current iteration", sg)
		return true
	default:
		return false
	}
}

// Go runs the sampler for max iterations, calling report every
// subsample iterations, and returns the number of iterations
// completed. Learning of proposal windows runs over the first tenth
// of the iterations.
func (s *Sampler) Go(m Model, subsample, max int, report func(iter int)) int {
	learnUntil := max / 10
	if learnUntil > 0 {
		s.StartLearning(learnUntil)
	}

	iter := 0
	for ; iter < max; iter++ {
		if iter == learnUntil && learnUntil > 0 {
			s.StopLearning(learnUntil)
		}

		n := s.Reset(1)
		for i := 0; i < n; i++ {
			s.Iterate(m, s.Stats, i)
		}

		if subsample > 0 && iter%subsample == 0 && report != nil {
			report(iter)
		}

		if s.interrupted() {
			iter++
			break
		}
	}
	return iter
}
