package models

// DeviceMapping 设备登记号与员工的绑定关系
// 同一 (device_id, enroll_id) 只有一条 active=true 的映射参与解析；
// 历史映射保留在表中，仅做审计。
// 映射由管理端维护，本服务只读。
type DeviceMapping struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId"`
	EnrollID string `json:"enrollId"`
	StaffID  string `json:"staffId"`
	Active   bool   `json:"active"`
}
