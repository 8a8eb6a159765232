// Package orchestrator runs the dialog engine: one user utterance in, at most
// one assistant reply out.
//
// Each turn is processed by a dispatch loop over a small set of stages. The
// router inspects the session and names the next stage; the scheduler plans
// tool batches for the current intent; the slot filler collects missing
// parameters; the executor runs one batch; the composer writes the reply.
// Every stage returns the next Stage value, and the loop stops at StageDone.
//
// Turns for the same session are serialized. Different sessions run
// independently against a shared, read-only catalogue.
//
// Example usage:
//
//	engine := orchestrator.New(orchestrator.RequiredConfig{
//		Catalog: catalog.Default(),
//		Tools:   tools.Travel(),
//		Store:   state.NewMemory(),
//	}, orchestrator.WithCapabilities(caps))
//	reply, err := engine.Turn(ctx, "", "Book a flight from New York to Paris on Dec 25")
package orchestrator
