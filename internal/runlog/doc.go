// Package runlog distributes the record of every finished completion to
// whoever persists or inspects runs. The completion layer never stores runs
// itself: it publishes a Record to a Topic and moves on.
//
// Two brokers are provided:
//   - Local fans records out to in-process subscribers
//   - NATS publishes records as JSON on a subject
//
// Example usage:
//
//	broker := runlog.Local()
//	topic := broker.Topic(ctx, "runs")
//
//	sub, err := topic.Subscribe(ctx, func(ctx context.Context, rec runlog.Record) {
//		store(rec)
//	})
//	if err != nil {
//		return err
//	}
//	defer sub.Unsubscribe()
//
//	p := openai.New(cfg, openai.WithRuns(topic))
//
// Slow local subscribers are dropped instead of blocking the completion path.
package runlog
