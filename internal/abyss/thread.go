package abyss

// ThreadProc is the background worker's job function.
type ThreadProc func()

// ThreadDoneFn runs once, after the job function returns.
type ThreadDoneFn func()

// Thread is a create/run/wait/kill/done worker, implemented over a goroutine
// and a done channel. Go has no handle to forcibly terminate a goroutine, so
// Kill is advisory only: the job function is expected to observe
// cancellation on its own (the Connection's Finished flag, or a context it
// was handed) and return.
type Thread struct {
	job      ThreadProc
	done     ThreadDoneFn
	killed   chan struct{}
	finished chan struct{}
}

// ThreadCreate builds a Thread bound to job/done but does not start it;
// ThreadRun does that. Separating create from run lets a connection be
// fully constructed before it is scheduled.
func ThreadCreate(job ThreadProc, done ThreadDoneFn) *Thread {
	return &Thread{
		job:      job,
		done:     done,
		killed:   make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// ThreadRun starts the goroutine. It always succeeds in this port (a Go
// goroutine launch cannot fail the way an OS thread create can).
func (t *Thread) ThreadRun() bool {
	go func() {
		defer close(t.finished)
		t.job()
		t.done()
	}()
	return true
}

// ThreadWaitAndRelease blocks until the goroutine's job and done callback
// have both returned.
func (t *Thread) ThreadWaitAndRelease() {
	<-t.finished
}

// ThreadKill requests best-effort termination. Closing killed is a signal
// a job function may select on; it does not forcibly stop a running job.
func (t *Thread) ThreadKill() bool {
	select {
	case <-t.killed:
	default:
		close(t.killed)
	}
	return true
}

// Killed reports whether ThreadKill has been requested, for job functions
// that cooperatively check it between units of work.
func (t *Thread) Killed() <-chan struct{} {
	return t.killed
}
