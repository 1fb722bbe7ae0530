package models

import "time"

// SyncCursor 每台设备一条的同步游标
// LastTimestamp 只在同步成功后前移；若发现比当前时间超前 5 分钟以上
// 则视为设备时钟回拨后的脏值，按 nil 处理（见 poller 的时钟偏移保护）。
type SyncCursor struct {
	DeviceID      string     `json:"deviceId"`
	LastTimestamp *time.Time `json:"lastTimestamp"`
	LastSuccessAt *time.Time `json:"lastSuccessAt"`
	LastErrorAt   *time.Time `json:"lastErrorAt"`
	LastError     *string    `json:"lastError"`
}
