package device

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Row 归一化后的设备记录
// 终端固件/中间件版本不同，返回的行结构差异很大，这里统一成
// (enrollId, timestamp, name, raw)。Timestamp 可能为零值（例如用户表没有时间字段），
// 是否丢弃由上层决定。
type Row struct {
	EnrollID  string
	Name      string
	Timestamp time.Time
	Raw       map[string]any
}

// HasTimestamp 是否解析出了有效时间
func (r Row) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

// RawJSON 返回原始行的 JSON 文本（审计用）
func (r Row) RawJSON() string {
	if r.Raw == nil {
		return "{}"
	}
	b, err := json.Marshal(r.Raw)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// 响应外层包装键，按优先级尝试
var wrapperKeys = []string{"data", "items", "records", "rows", "attendances", "logs", "users"}

// 登记号字段别名，按优先级尝试
var enrollIDKeys = []string{
	"enrollId", "enroll_id", "enrollNumber", "enroll_number",
	"userId", "user_id", "uid", "pin", "badgeNumber", "badge_number",
}

// 时间字段别名，按优先级尝试
var timestampKeys = []string{
	"timestamp", "checkTime", "check_time", "recordTime", "record_time",
	"punchTime", "punch_time", "scanTime", "datetime", "time",
}

// 姓名字段别名（仅用户表有）
var nameKeys = []string{"name", "userName", "user_name", "staffName"}

// 设备侧常见的时间文本格式
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
}

// NormalizeRows 将任意形状的设备响应归一化为行列表
// 接受裸数组或已知包装键（data/items/records/...）；未知形状返回空列表而不是报错，
// 这是对部分损坏负载的刻意容忍。
func NormalizeRows(payload any) []Row {
	items := extractList(payload, 0)
	if items == nil {
		return []Row{}
	}

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := Row{
			EnrollID: firstString(m, enrollIDKeys),
			Name:     firstString(m, nameKeys),
			Raw:      m,
		}
		if ts, ok := firstTimestamp(m); ok {
			row.Timestamp = ts
		}
		rows = append(rows, row)
	}
	return rows
}

// extractList 从响应中取出行数组；包装键最多向内递归两层
func extractList(payload any, depth int) []any {
	if list, ok := payload.([]any); ok {
		return list
	}
	if depth >= 2 {
		return nil
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range wrapperKeys {
		if inner, ok := m[key]; ok {
			if list := extractList(inner, depth+1); list != nil {
				return list
			}
		}
	}
	return nil
}

// firstString 按别名优先级取第一个非空字符串（数值会转成十进制文本）
func firstString(m map[string]any, keys []string) string {
	for _, key := range keys {
		v, ok := m[key]
		if !ok {
			continue
		}
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

// firstTimestamp 按别名优先级解析第一个有效时间；都解析不出返回 false（不是错误）
func firstTimestamp(m map[string]any) (time.Time, bool) {
	for _, key := range timestampKeys {
		v, ok := m[key]
		if !ok {
			continue
		}
		if ts, ok := parseTimestamp(v); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseTimestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return ts, true
			}
		}
		// 纯数字文本按 unix 时间处理
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixTimestamp(n)
		}
		return time.Time{}, false
	case float64:
		return unixTimestamp(int64(val))
	case int64:
		return unixTimestamp(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return unixTimestamp(n)
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// unixTimestamp 秒或毫秒的 unix 时间；非正值视为无效
func unixTimestamp(n int64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n > 1e12 { // 毫秒
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}
