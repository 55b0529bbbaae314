package automaton

import (
	"sync"

	"firegrid/pkg/grid"
	"firegrid/pkg/terrain"
)

// transferPass computes this step's energy flow from every burning cell to
// its unburned Moore neighbors, accumulating into a.incoming. It reads only
// pre-step state and writes only the buffer, so the pass can fan out over
// workers: each worker sums into its own buffer over a disjoint slice of
// the burning set, and the buffers are folded in worker order afterwards.
// Per-cell sums are plain additions, so the fold is order-stable for a
// fixed worker count.
func (a *Automaton) transferPass(dt float64) {
	clear(a.incoming)

	a.burning = a.burning[:0]
	for k := 0; k < a.g.Len(); k++ {
		if a.g.AtIndex(k).State == grid.StateBurning {
			a.burning = append(a.burning, k)
		}
	}
	if len(a.burning) == 0 {
		return
	}

	workers := a.cfg.Workers
	if workers <= 1 || len(a.burning) < workers {
		a.transferRange(a.incoming, a.burning, nil, dt)
		return
	}

	var wg sync.WaitGroup
	chunk := (len(a.burning) + workers - 1) / workers
	spawned := 0
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(a.burning))
		if lo >= hi {
			break
		}
		spawned++
		wg.Add(1)
		go func(buf []float64, sources []int) {
			defer wg.Done()
			clear(buf)
			a.transferRange(buf, sources, nil, dt)
		}(a.workerBufs[w], a.burning[lo:hi])
	}
	wg.Wait()

	// Only the buffers handed out this step carry fresh sums; an idle
	// tail buffer still holds an earlier step's values.
	for w := 0; w < spawned; w++ {
		buf := a.workerBufs[w]
		for k, v := range buf {
			if v != 0 {
				a.incoming[k] += v
			}
		}
	}
}

// transferRange accumulates transfers from the given burning sources into
// buf. nbuf is scratch for neighbor lookups and may be nil.
func (a *Automaton) transferRange(buf []float64, sources []int, nbuf []terrain.Neighbor, dt float64) {
	for _, k := range sources {
		src := a.g.AtIndex(k)
		nbuf = nbuf[:0]
		nbuf = a.t.AppendNeighbors(nbuf, src.I, src.J)
		for _, n := range nbuf {
			dst := a.g.At(n.I, n.J)
			if dst.State != grid.StateUnburned {
				continue
			}
			rate := a.engine.SpreadRate(src, dst)
			buf[a.g.Index(n.I, n.J)] += a.engine.EnergyTransfer(src, rate, n.Distance, dt)
		}
	}
}

// spottingPass draws at most one ember per burning cell, in arena order,
// strictly after the neighbor transfers. A landing on an unburned cell
// injects the base ignition energy into the transfer buffer, where the
// ordinary ignition check picks it up this same step.
func (a *Automaton) spottingPass() {
	base := a.cfg.Physics.BaseIgnitionEnergy
	for _, k := range a.burning {
		src := a.g.AtIndex(k)
		x, y, ok := a.engine.SampleSpot(src, a.rng)
		if !ok {
			continue
		}
		i, j, inBounds := a.t.CellAt(x, y)
		if !inBounds {
			continue
		}
		dst := a.g.At(i, j)
		if dst.State != grid.StateUnburned {
			continue
		}
		a.incoming[a.g.Index(i, j)] += base
	}
}
