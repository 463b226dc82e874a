// Package job 定义任务键、任务描述符及其内容哈希.
//
// 描述符由注册方（registrar）提交给协调器（coordinator），
// 协调器通过内容哈希判断任务是否需要更新.
package job

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidDescriptor 描述符格式错误.
var ErrInvalidDescriptor = errors.New("job: invalid descriptor")

// Key 任务唯一标识.
type Key string

// String 实现 fmt.Stringer.
func (k Key) String() string {
	return string(k)
}

// ScheduleType 调度类型.
type ScheduleType string

// 支持的调度类型.
const (
	ScheduleCron     ScheduleType = "cron"
	ScheduleInterval ScheduleType = "interval"
	ScheduleOnce     ScheduleType = "once"
)

// Valid 判断调度类型是否受支持.
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleCron, ScheduleInterval, ScheduleOnce:
		return true
	}
	return false
}

// Descriptor 任务描述符.
type Descriptor struct {
	// ProducerVersion 注册方构建时使用的 SDK 版本.
	ProducerVersion string `json:"producer_version"`
	// Settings 可执行设置，由任务体解码.
	Settings json.RawMessage `json:"settings"`
	// ScheduleType 调度类型.
	ScheduleType ScheduleType `json:"schedule_type"`
	// ScheduleSettings 调度设置，结构由 ScheduleType 决定.
	ScheduleSettings json.RawMessage `json:"schedule_settings"`
}

// NewDescriptor 编码设置并构建描述符.
func NewDescriptor(version string, settings any, scheduleType ScheduleType, scheduleSettings any) (Descriptor, error) {
	s, err := EncodeSettings(settings)
	if err != nil {
		return Descriptor{}, err
	}
	ss, err := EncodeSettings(scheduleSettings)
	if err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{
		ProducerVersion:  version,
		Settings:         s,
		ScheduleType:     scheduleType,
		ScheduleSettings: ss,
	}
	return d, d.Validate()
}

// Validate 校验描述符结构，包括调度设置能否构建出触发计划.
func (d Descriptor) Validate() error {
	if !d.ScheduleType.Valid() {
		return fmt.Errorf("%w: unsupported schedule type %q", ErrInvalidDescriptor, d.ScheduleType)
	}
	if len(bytes.TrimSpace(d.Settings)) == 0 {
		return fmt.Errorf("%w: settings are empty", ErrInvalidDescriptor)
	}
	if !json.Valid(d.Settings) {
		return fmt.Errorf("%w: settings are not valid json", ErrInvalidDescriptor)
	}
	if _, err := d.Schedule(); err != nil {
		return err
	}
	return nil
}

// ContentHash 返回描述符的内容哈希（十六进制 SHA-256）.
//
// JSON 字段先规范化（键排序、去除空白）再参与计算，
// 因此字段顺序与格式差异不影响结果.
func (d Descriptor) ContentHash() string {
	h := sha256.New()
	writeField(h, []byte(d.ProducerVersion))
	writeField(h, canonicalJSON(d.Settings))
	writeField(h, []byte(d.ScheduleType))
	writeField(h, canonicalJSON(d.ScheduleSettings))
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w interface{ Write([]byte) (int, error) }, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = w.Write(n[:])
	_, _ = w.Write(b)
}

// canonicalJSON 规范化 JSON，非法 JSON 原样返回.
func canonicalJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return b
}

// EncodeSettings 将设置编码为 JSON，已是 json.RawMessage 时原样返回.
func EncodeSettings(v any) (json.RawMessage, error) {
	switch s := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: settings are nil", ErrInvalidDescriptor)
	case json.RawMessage:
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return b, nil
}

// DecodeSettings 将 JSON 设置解码为类型 T.
func DecodeSettings[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("%w: settings are empty", ErrInvalidDescriptor)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return v, nil
}
