package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_SubmitRunsJob(t *testing.T) {
	p := newWorkerPool(2)
	defer p.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	p.Submit(func() { wg.Done() })

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted job never ran")
	}
}

func TestWorkerPool_StopIsIdempotent(t *testing.T) {
	p := newWorkerPool(1)
	p.Stop()
	assert.NotPanics(t, func() { p.Stop() })
}

func TestWorkerPool_DefaultSizeRunsAllJobs(t *testing.T) {
	p := newWorkerPool(0)
	defer p.Stop()

	const jobCount = 20
	var wg sync.WaitGroup
	wg.Add(jobCount)
	for i := 0; i < jobCount; i++ {
		p.Submit(func() { wg.Done() })
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all jobs ran with the default pool size")
	}
}
