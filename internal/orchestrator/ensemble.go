// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package orchestrator

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/router"
	"github.com/aiverse/hybridstack/internal/task"
)

// executeEnsemble dispatches the task to the top-N ranked providers
// sequentially and picks the best answer. Ranking reuses the routing
// decision: the winner plus its fallback chain, truncated to the ensemble
// size. Members refused by budget admission are skipped; if every member is
// refused the caller gets ErrBudgetExceeded rather than a silent downgrade.
func (o *Orchestrator) executeEnsemble(ctx context.Context, t *task.Descriptor) (*task.Result, error) {
	decision, err := o.router.RouteTask(t)
	if err != nil {
		return nil, err
	}

	members := append([]string{decision.Provider}, decision.Fallbacks...)
	if len(members) > o.cfg.Size {
		members = members[:o.cfg.Size]
	}

	var (
		responses []ensembleResponse
		totalCost float64
		lastErr   error
		refused   int
	)
	start := o.clock.Now()

	for _, name := range members {
		admission := o.costs.ShouldAllowRequest(name, decision.EstimatedCost)
		if !admission.Allowed {
			log.WithField("task_id", t.ID).Warnf("ensemble member %s refused: %s", name, admission.Reason)
			refused++
			continue
		}

		res, err := o.router.ExecuteOn(ctx, t, name)
		if err != nil {
			lastErr = err
			log.WithField("task_id", t.ID).Warnf("ensemble member %s failed: %v", name, err)
			continue
		}
		totalCost += res.Cost
		responses = append(responses, ensembleResponse{result: res, score: scoreResponse(res)})
	}

	if refused == len(members) {
		return nil, fmt.Errorf("%w: all ensemble members refused by budget", router.ErrBudgetExceeded)
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("%w: ensemble produced no responses: %v", router.ErrAllProvidersFailed, lastErr)
	}

	best := responses[0]
	var confidenceSum float64
	for _, r := range responses {
		confidenceSum += r.score
		if r.score > best.score {
			best = r
		}
	}

	return &task.Result{
		TaskID:     t.ID,
		Response:   best.result.Response,
		Source:     task.SourceEnsemble,
		Provider:   best.result.Provider,
		Model:      best.result.Model,
		Cost:       totalCost,
		Latency:    o.clock.Now().Sub(start),
		Confidence: confidenceSum / float64(len(responses)),
	}, nil
}

type ensembleResponse struct {
	result *router.ExecResult
	score  float64
}

// scoreResponse is a cheap quality heuristic: substance up to a few hundred
// words counts for most of the score, faster answers break ties.
func scoreResponse(res *router.ExecResult) float64 {
	words := len(strings.Fields(res.Response))
	score := float64(words) / 300.0
	if score > 0.9 {
		score = 0.9
	}
	if res.Latency.Seconds() < 2 {
		score += 0.1
	}
	return score
}
