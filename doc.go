// Package procflow provides an embeddable workflow orchestration engine.
//
// Workflows are directed graphs of typed activities (service calls, human
// tasks, scripts, timers and gateways) connected by conditional
// transitions. The engine moves tokens through the graph, suspends on
// human tasks and timers, retries failing activities and compensates
// completed work when an instance fails.
//
// The root package wires the engine with its collaborators from a Config:
//
//	srv, _ := procflow.New(procflow.WithMetaBaseURL("file:///etc/workflows"))
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	wf, _ := rt.LoadWorkflow(ctx, "order.yaml")
//	_, _ = rt.RegisterWorkflow(ctx, wf)
//	_, wait, _ := rt.StartProcess(ctx, wf.ID, "alice", map[string]interface{}{"amount": 50})
//	snapshot, _ := wait(ctx, time.Minute)
package procflow
