/*
Package domain contains the core models of the mintline issuance workflow.

It defines the closed set of workflow stages and the single transition table
that governs them, the immutable issuance request, the mutable workflow state
with its write-once ledger evidence, and the error taxonomy shared by adapters
and the orchestrator. The package performs no I/O.

# Key Entities

  - Stage / Event: The workflow stages and the events that move between them (see Transition).
  - IssuanceRequest: What the creator asked for (asset code, supply, fee).
  - WorkflowState: The snapshot owned by one orchestrator instance.
  - Error: A classified failure (validation, collaborator fault, user declined, timeout, transient).
*/
package domain
