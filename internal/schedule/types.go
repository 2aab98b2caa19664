package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "dayplan/pkg/logx"
)

var (
	ErrUnknown = errors.New("schedule not found")
	ErrSkipped = errors.New("previous run still in flight")
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means Local
}

type Job func(ctx context.Context) error

// runState is shared by every trigger of one schedule.
type runState struct {
	running  atomic.Bool
	runs     atomic.Uint64
	skips    atomic.Uint64
	failures atomic.Uint64
	lastErr  atomic.Value // string
}

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	state         *runState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	runCtx context.Context
	cancel context.CancelFunc

	hmu     sync.Mutex
	history []HistoryItem
}

type ScheduleInfo struct {
	Name      string
	Spec      string
	Timeout   time.Duration
	Next      time.Time
	Prev      time.Time
	Running   bool
	Runs      uint64
	Skips     uint64
	Failures  uint64
	LastError string
}

type HistoryItem struct {
	Name  string
	Start time.Time
	Took  time.Duration
	Err   string
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem
}

const historySize = 100
