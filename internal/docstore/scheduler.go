package docstore

import (
	"sync"
	"time"
)

// scheduler 以固定间隔调用 task，stop 之后不会再触发。
type scheduler struct {
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startScheduler(interval time.Duration, task func()) *scheduler {
	sch := &scheduler{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go sch.run(interval, task)
	return sch
}

func (sch *scheduler) run(interval time.Duration, task func()) {
	defer close(sch.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.quit:
			return
		case <-ticker.C:
			// ticker 与 quit 同时就绪时 select 随机选择，这里再确认一次。
			select {
			case <-sch.quit:
				return
			default:
			}
			task()
		}
	}
}

// stop 通知循环退出并等待正在执行的 task 返回。nil 与重复调用都安全。
func (sch *scheduler) stop() {
	if sch == nil {
		return
	}
	sch.stopOnce.Do(func() {
		close(sch.quit)
	})
	<-sch.done
}
