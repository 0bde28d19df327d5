package types

import (
	"sync/atomic"
)

type StatisticsItem struct {
	Count uint64 `json:",omitempty"`
	Bytes uint64 `json:",omitempty"`
}

type StageStatistics struct {
	Submitted StatisticsItem
	Succeeded StatisticsItem
	Failed    StatisticsItem
}

type TaskStatistics struct {
	Resolved  uint64 `json:",omitempty"`
	Rejected  uint64 `json:",omitempty"`
	Cancelled uint64 `json:",omitempty"`
}

type Statistics struct {
	Read    StageStatistics
	Decode  StageStatistics
	Process StageStatistics
	Tasks   TaskStatistics
}

type CountersItem struct {
	Count atomic.Uint64
	Bytes atomic.Uint64
}

func (c *CountersItem) Increment(msgSize uint64) {
	c.Count.Add(1)
	c.Bytes.Add(msgSize)
}

func (c *CountersItem) ToStats() StatisticsItem {
	return StatisticsItem{
		Count: c.Count.Load(),
		Bytes: c.Bytes.Load(),
	}
}

type StageCounters struct {
	Submitted CountersItem
	Succeeded CountersItem
	Failed    CountersItem
}

func (c *StageCounters) ToStats() StageStatistics {
	return StageStatistics{
		Submitted: c.Submitted.ToStats(),
		Succeeded: c.Succeeded.ToStats(),
		Failed:    c.Failed.ToStats(),
	}
}

type Counters struct {
	Stages [EndOfStage]StageCounters

	TasksResolved  atomic.Uint64
	TasksRejected  atomic.Uint64
	TasksCancelled atomic.Uint64
}

func NewCounters() *Counters {
	return &Counters{}
}

// Stage returns the counters of the stage; unknown stages share the undefined slot.
func (c *Counters) Stage(s Stage) *StageCounters {
	if s <= UndefinedStage || s >= EndOfStage {
		return &c.Stages[UndefinedStage]
	}
	return &c.Stages[s]
}

// StageCompleted accounts a completion callback of the stage.
func (c *Counters) StageCompleted(s Stage, rc ResultCode, msgSize uint64) {
	if rc.IsSuccess() {
		c.Stage(s).Succeeded.Increment(msgSize)
	} else {
		c.Stage(s).Failed.Increment(msgSize)
	}
}

func (c *Counters) ToStats() Statistics {
	return Statistics{
		Read:    c.Stage(StageRead).ToStats(),
		Decode:  c.Stage(StageDecode).ToStats(),
		Process: c.Stage(StageProcess).ToStats(),
		Tasks: TaskStatistics{
			Resolved:  c.TasksResolved.Load(),
			Rejected:  c.TasksRejected.Load(),
			Cancelled: c.TasksCancelled.Load(),
		},
	}
}
