package job

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser 支持可选秒字段与 @daily 等描述符.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Duration 支持 "1h30m" 字符串或纳秒整数的 JSON 时长.
type Duration time.Duration

// MarshalJSON 编码为时长字符串.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON 解码时长字符串或整数.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("job: invalid duration %s", string(b))
	}
	return nil
}

// CronSchedule cron 调度设置.
type CronSchedule struct {
	// Expression cron 表达式，支持 5 段或 6 段（含秒）以及 @daily 等描述符.
	Expression string `json:"expression"`
	// Location IANA 时区名，为空时使用引擎时区.
	Location string `json:"location,omitempty"`
}

// IntervalSchedule 固定间隔调度设置.
type IntervalSchedule struct {
	Every   Duration   `json:"every"`
	StartAt *time.Time `json:"start_at,omitempty"`
}

// OnceSchedule 单次调度设置.
type OnceSchedule struct {
	At time.Time `json:"at"`
}

// Schedule 根据调度类型构建触发计划.
func (d Descriptor) Schedule() (cron.Schedule, error) {
	switch d.ScheduleType {
	case ScheduleCron:
		s, err := DecodeSettings[CronSchedule](d.ScheduleSettings)
		if err != nil {
			return nil, err
		}
		return s.build()
	case ScheduleInterval:
		s, err := DecodeSettings[IntervalSchedule](d.ScheduleSettings)
		if err != nil {
			return nil, err
		}
		return s.build()
	case ScheduleOnce:
		s, err := DecodeSettings[OnceSchedule](d.ScheduleSettings)
		if err != nil {
			return nil, err
		}
		return s.build()
	default:
		return nil, fmt.Errorf("%w: unsupported schedule type %q", ErrInvalidDescriptor, d.ScheduleType)
	}
}

func (s CronSchedule) build() (cron.Schedule, error) {
	if strings.TrimSpace(s.Expression) == "" {
		return nil, fmt.Errorf("%w: cron expression is empty", ErrInvalidDescriptor)
	}
	sched, err := cronParser.Parse(s.Expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if s.Location != "" {
		loc, err := time.LoadLocation(s.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
		}
		if spec, ok := sched.(*cron.SpecSchedule); ok {
			spec.Location = loc
		}
	}
	return sched, nil
}

func (s IntervalSchedule) build() (cron.Schedule, error) {
	if time.Duration(s.Every) < time.Second {
		return nil, fmt.Errorf("%w: interval must be at least 1s", ErrInvalidDescriptor)
	}
	return &intervalSchedule{
		every:   cron.Every(time.Duration(s.Every)),
		startAt: s.StartAt,
	}, nil
}

func (s OnceSchedule) build() (cron.Schedule, error) {
	if s.At.IsZero() {
		return nil, fmt.Errorf("%w: once schedule requires at", ErrInvalidDescriptor)
	}
	return onceSchedule{at: s.At}, nil
}

// intervalSchedule 固定间隔，可指定首次触发时间.
type intervalSchedule struct {
	every   cron.ConstantDelaySchedule
	startAt *time.Time
}

func (s *intervalSchedule) Next(t time.Time) time.Time {
	if s.startAt != nil && t.Before(*s.startAt) {
		return *s.startAt
	}
	return s.every.Next(t)
}

// onceSchedule 只触发一次，之后返回零值.
type onceSchedule struct {
	at time.Time
}

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}
