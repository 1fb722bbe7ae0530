package models

import "time"

// 打卡事件类型
const (
	EventCheckIn          = "check_in"
	EventCheckOut         = "check_out"
	EventIgnoredDuplicate = "ignored_duplicate"
	EventUnknownEnroll    = "unknown_enroll"
)

// RawScanEvent 一次物理打卡的不可变记录（审计 + 去重）
// (device_id, enroll_id, scanned_at) 唯一，重复摄取同一行不会产生第二条记录。
type RawScanEvent struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	EnrollID  string    `json:"enrollId"`
	StaffID   *string   `json:"staffId"` // 未映射时为空
	ScannedAt time.Time `json:"scannedAt"`
	Date      string    `json:"date"` // 本地日历日 YYYY-MM-DD（派生）
	Time      string    `json:"time"` // 本地时间 HH:MM（派生）
	Type      string    `json:"type"`
	Raw       string    `json:"raw"` // 设备原始行（JSON 原文）
}
