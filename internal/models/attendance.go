package models

// AttendanceRecord 人事模块的考勤记录（本服务只做条件 upsert，不拥有其生命周期）
// 以 (staff_id, date[, shift_id]) 定位；状态字典、排班归属由人事模块维护。
type AttendanceRecord struct {
	ID       string  `json:"id"`
	StaffID  string  `json:"staffId"`
	Date     string  `json:"date"` // YYYY-MM-DD
	ShiftID  *string `json:"shiftId"`
	ClockIn  *string `json:"clockIn"`  // HH:MM
	ClockOut *string `json:"clockOut"` // HH:MM
	Status   string  `json:"status"`
}

// DeviceUser 终端上登记的用户（用于管理端的"列出设备用户"）
type DeviceUser struct {
	EnrollID string `json:"enrollId"`
	Name     string `json:"name"`
}
