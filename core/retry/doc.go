// Package retry provides pure retry and backoff decisions for failed jobs.
//
// A Policy is constructed from an explicit base delay and delay cap; there
// are no implicit defaults. Given the number of attempts a job has already
// made, its attempt budget, and the error that failed the last attempt,
// Decide returns whether the job should be retried and after what delay:
//
//	policy, err := retry.NewPolicy(time.Second, 5*time.Second)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	d := policy.Decide(job.AttemptsMade, job.MaxAttempts, execErr)
//	if d.Retry {
//		// re-enqueue the job, eligible after d.Delay
//	}
//
// The delay schedule is exponential and capped: the first retry waits the
// base delay, and each subsequent retry doubles it up to the cap.
//
// Errors can opt out of retrying by implementing Retryable() bool; payload
// validation failures do this so a malformed job fails terminally instead
// of burning its attempt budget.
package retry
