package temporal

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// RegisterWith registers TurnWorkflow and every Activities method a worker
// needs to host a Driver's workflows, under the fixed names TurnWorkflow's
// own workflow.ExecuteActivity calls reference. Mirrors the teacher's
// workerBundle.registerWorkflow/registerActivity pair (engine.go), minus the
// per-task-queue bundle bookkeeping a single fixed task queue has no use
// for.
func RegisterWith(w worker.Worker, acts *Activities) {
	w.RegisterWorkflowWithOptions(TurnWorkflow, workflow.RegisterOptions{Name: WorkflowName})

	w.RegisterActivityWithOptions(acts.ExtractTaskActivity, activity.RegisterOptions{Name: activityExtractTask})
	w.RegisterActivityWithOptions(acts.ClassifyActivity, activity.RegisterOptions{Name: activityClassify})
	w.RegisterActivityWithOptions(acts.OrchestrateActivity, activity.RegisterOptions{Name: activityOrchestrate})
	w.RegisterActivityWithOptions(acts.ErrorReportActivity, activity.RegisterOptions{Name: activityErrorReport})
	w.RegisterActivityWithOptions(acts.ExecuteCapabilityActivity, activity.RegisterOptions{Name: activityExecuteCapability})
}
