// Package amp is a client for an experimentation and optimization backend.
// An application opens a Session per end user, reports events with Observe
// and asks for the best variant of something with Decide or DecideCond:
//
//   - Sessions carry a strictly increasing request index and reset their
//     identity when reused after an idle TTL
//   - Candidates are either a flat list or a map of attribute options that is
//     expanded into its cartesian product (at most MaxCandidates combinations)
//   - Every request races a deadline; when the deadline wins the caller gets
//     a local default immediately, so decisions never block the application
//   - Requests are routed to one of several weighted agents by rendezvous
//     hashing on the user id, with an optional per-agent circuit breaker
//   - Prometheus metrics and zerolog based structured logging
//
// Typical usage:
//
//	client := amp.New(
//	    amp.WithKey("my-project-key"),
//	    amp.WithTimeout(500*time.Millisecond),
//	)
//	session, err := client.NewSession(amp.WithUserID("user-42"))
//	if err != nil {
//	    return err
//	}
//	session.Observe(ctx, "page-view", map[string]any{"path": "/"})
//	decision, _ := session.Decide(ctx, "hero", amp.CandidateOptions{
//	    "color": {"red", "blue"},
//	    "size":  {"s", "m", "l"},
//	})
//	render(decision.First())
//
// Decide never returns a nil Decision. Errors that accompany a decision are
// informational: the decision still holds a usable default.
package amp
