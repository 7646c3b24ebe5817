package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"

	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

const barTemplate = `{{string . "prefix"}} {{bar . }} {{percent . }} {{string . "suffix"}}`

// progressBoard renders queue events for the tasks of one command. With bars
// enabled each task gets a progress bar and outcome lines are held back until
// finish so they don't tear the bar pool; otherwise every event is a line.
type progressBoard struct {
	out  io.Writer
	bars bool

	mu        sync.Mutex
	pool      *pb.Pool
	tasks     map[string]*pb.ProgressBar
	held      []string
	completed int
	failed    int
}

func newProgressBoard(out io.Writer, bars bool) *progressBoard {
	return &progressBoard{
		out:   out,
		bars:  bars,
		tasks: make(map[string]*pb.ProgressBar),
	}
}

// Attach subscribes the board to every event kind on bus.
func (b *progressBoard) Attach(bus *application.EventBus) {
	bus.SubscribeAll(b.handle)
}

func (b *progressBoard) handle(ev model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := ev.Task
	bar := b.tasks[t.ID]

	switch ev.Kind {
	case model.EventQueued:
		b.addBar(t)
		if !b.bars {
			b.report(dimColor, "queued    %s", t.Title)
		}
	case model.EventStarted:
		if bar != nil {
			bar.SetCurrent(0)
			bar.Set("suffix", "uploading")
		} else {
			b.report(dimColor, "uploading %s", t.Title)
		}
	case model.EventProgress:
		if bar != nil {
			bar.SetCurrent(int64(t.Progress))
		}
	case model.EventCompleted:
		b.completed++
		if bar != nil {
			bar.SetCurrent(100)
			bar.Set("suffix", "done")
		}
		url := ""
		if ev.Result != nil {
			url = ev.Result.URL
		}
		b.report(okColor, "done      %s  %s", t.Title, url)
	case model.EventFailed:
		if ev.Final {
			b.failed++
			if bar != nil {
				bar.Set("suffix", "failed")
			}
			b.report(errColor, "failed    %s: %s", t.Title, t.LastError)
			return nil
		}
		if bar != nil {
			bar.Set("suffix", "retrying")
		}
		b.report(warnColor, "retrying  %s: %s", t.Title, t.LastError)
	case model.EventCancelled:
		if bar != nil {
			bar.Set("suffix", "cancelled")
		}
		b.report(warnColor, "cancelled %s", t.Title)
	}
	return nil
}

// addBar must be called with mu held.
func (b *progressBoard) addBar(t model.Task) {
	if !b.bars {
		return
	}

	bar := pb.ProgressBarTemplate(barTemplate).New(100)
	bar.Set("prefix", t.Title)
	bar.Set("suffix", "queued")

	if b.pool == nil {
		pool, err := pb.StartPool(bar)
		if err != nil {
			// No usable terminal after all; degrade to plain lines.
			b.bars = false
			return
		}
		b.pool = pool
	} else {
		b.pool.Add(bar)
	}
	b.tasks[t.ID] = bar
}

// report must be called with mu held.
func (b *progressBoard) report(c *color.Color, format string, args ...any) {
	line := c.Sprintf(format, args...)
	if b.bars {
		b.held = append(b.held, line)
		return
	}
	fmt.Fprintln(b.out, line)
}

// finish stops the bars, prints held lines and returns the outcome counts.
func (b *progressBoard) finish() (completed, failed int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pool != nil {
		for _, bar := range b.tasks {
			bar.Finish()
		}
		_ = b.pool.Stop()
		b.pool = nil
	}
	for _, line := range b.held {
		fmt.Fprintln(b.out, line)
	}
	b.held = nil
	return b.completed, b.failed
}
