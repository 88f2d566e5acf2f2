// Package workflow advances jobs through the content pipeline.
//
// The Executor owns every state change a job makes. RunJob checks the kill
// switch and the daily quota, picks the stage to start from (the first stage
// for pending jobs, the resume point for failed ones), and then walks the
// remaining stages in order: enter the stage, resolve its provider from the
// registry, invoke it, and persist what it produced. A provider error moves
// the job to failed and stops the run; the job can later be retried and will
// pick up after the last stage that succeeded.
//
// Every state change goes through queue.Store.TransitionJob, so each one is
// validated against the state table and leaves a run record behind.
package workflow
