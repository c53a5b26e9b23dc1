package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	"github.com/JakeFAU/storefront-ingest/internal/normalize"
	"github.com/JakeFAU/storefront-ingest/internal/retry"
)

// processOne fetches, classifies, and commits one identifier, then advances
// the checkpoint. Any returned error leaves the checkpoint untouched.
func (d *Driver) processOne(ctx context.Context, id int64) (catalog.Outcome, error) {
	exhausted := d.onExhausted(id)
	primary, err := retry.Do(ctx, d.deps.Retry, "fetch_record", func(ctx context.Context) (catalog.Record, error) {
		return d.deps.Records.FetchRecord(ctx, id, d.cfg.PrimaryLocale)
	}, exhausted)
	if err != nil {
		return "", err
	}

	in := normalize.Input{AppID: id, Primary: primary}
	if normalize.Classify(primary) == catalog.OutcomeGame {
		if in, err = d.fetchGame(ctx, in, exhausted); err != nil {
			return "", err
		}
	}

	plan, err := d.normalizer.Normalize(in)
	if err != nil {
		return "", err
	}
	if plan.Game != nil && d.deps.Estimates != nil && normalize.NeedsEstimate(primary) {
		estimate, err := d.deps.Estimates.Resolve(ctx, plan.Game.Name)
		if err != nil {
			return "", err
		}
		plan.Game.Estimate = estimate
	}

	if err := d.commit(ctx, plan); err != nil {
		return "", err
	}
	if err := d.deps.Games.AdvanceCheckpoint(ctx, id); err != nil {
		return "", fmt.Errorf("advance checkpoint: %w", err)
	}
	d.notify(ctx, plan)
	return plan.Outcome, nil
}

// fetchGame gathers the localized record, reviews, and labels of a game.
func (d *Driver) fetchGame(ctx context.Context, in normalize.Input, exhausted retry.ExhaustedFunc) (normalize.Input, error) {
	var err error
	in.Localized, err = retry.Do(ctx, d.deps.Retry, "fetch_localized", func(ctx context.Context) (catalog.Record, error) {
		return d.deps.Records.FetchRecord(ctx, in.AppID, d.cfg.LocalizedLocale)
	}, exhausted)
	if err != nil {
		return in, err
	}
	in.Reviews, err = retry.Do(ctx, d.deps.Retry, "fetch_reviews", func(ctx context.Context) (catalog.ReviewsSummary, error) {
		return d.deps.Records.FetchReviews(ctx, in.AppID)
	}, exhausted)
	if err != nil {
		return in, err
	}
	in.Tags, err = retry.Do(ctx, d.deps.Retry, "fetch_labels", func(ctx context.Context) ([]string, error) {
		return d.deps.Labels.FetchLabels(ctx, in.AppID)
	}, exhausted)
	if err != nil {
		return in, err
	}
	return in, nil
}

func (d *Driver) commit(ctx context.Context, plan catalog.Plan) error {
	switch {
	case plan.Game != nil:
		if err := d.deps.Games.CommitGame(ctx, *plan.Game); err != nil {
			return fmt.Errorf("commit game: %w", err)
		}
	case plan.Item != nil:
		if err := d.deps.Items.CommitItem(ctx, *plan.Item); err != nil {
			return fmt.Errorf("commit item: %w", err)
		}
	default:
		return fmt.Errorf("empty plan for %d", plan.AppID)
	}
	return nil
}

// onExhausted records id in the skip-list once its retries run out.
func (d *Driver) onExhausted(id int64) retry.ExhaustedFunc {
	return func(ctx context.Context, lastErr error) error {
		d.logger.Warn("adding identifier to skip-list", zap.Int64("appid", id), zap.Error(lastErr))
		return d.deps.SkipList.Add(ctx, id)
	}
}

// notify publishes a commit notice; failures never affect the run.
func (d *Driver) notify(ctx context.Context, plan catalog.Plan) {
	if d.deps.Publisher == nil || d.cfg.Topic == "" {
		return
	}
	notice := catalog.CommitNotice{AppID: plan.AppID, Outcome: plan.Outcome, CommittedAt: d.deps.Clock.Now()}
	if _, err := d.deps.Publisher.Publish(ctx, d.cfg.Topic, notice); err != nil {
		d.logger.Warn("commit notice publish failed", zap.Int64("appid", plan.AppID), zap.Error(err))
	}
}
