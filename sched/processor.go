// Package sched runs background jobs: a worker-pool processor plus a
// ticker-based scheduler for periodic jobs like billing.
package sched

import (
	"log"
)

type JobType string

type Job interface {
	Type() JobType
	ID() string
	Do() error
}

type Processor struct {
	JobQueue chan Job
	PoolSize int
}

func NewProcessor(queueSize int, poolSize int) *Processor {
	return &Processor{
		JobQueue: make(chan Job, queueSize),
		PoolSize: poolSize,
	}
}

func (p *Processor) Close() error {
	close(p.JobQueue)
	log.Println("[processor] stopped")
	return nil
}

func (p *Processor) Submit(job Job) {
	p.JobQueue <- job
}

func (p *Processor) Start() {
	for i := 0; i < p.PoolSize; i++ {
		go func() {
			for job := range p.JobQueue {
				if err := job.Do(); err != nil {
					log.Printf("[processor] job failed (type=%s, id=%s): %v", job.Type(), job.ID(), err)
				}
			}
		}()
	}
	log.Println("[processor] started")
}
