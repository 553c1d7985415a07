/*
Package ports defines the driven ports (interfaces) of the mintline orchestrator.

These interfaces decouple the workflow from the collaborators it drives, so the
same state machine can run against the real issuance backend, a simulated one,
or test doubles.

# Key Interfaces

  - IssuanceService: The backend that provisions accounts, reports trustline status and executes the split.
  - Signer: The user-held signing agent.
  - StateStore: Optional persistence of workflow snapshots.
  - DistributedLocker: Serialises control calls for one workflow across replicas.
*/
package ports
