// Package jobstate defines the job lifecycle: the legal transition table,
// the order in which working stages run, and where a failed job resumes.
//
// Nothing here touches storage. The queue store and the workflow executor
// both consult CanTransition before writing a state change so an illegal
// move surfaces as an InvalidTransitionError instead of being clamped.
package jobstate
