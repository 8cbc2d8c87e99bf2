package domain

// KeyState 是单个错误 key 在一次运行中的状态。
//
// 状态迁移：scanned -> auto_corrected | awaiting_decision | unresolved
// awaiting_decision -> corrected | skipped | accepted
// auto_corrected | corrected -> not_written（写回失败）
type KeyState string

const (
	StateScanned          KeyState = "scanned"
	StateAutoCorrected    KeyState = "auto_corrected"
	StateAwaitingDecision KeyState = "awaiting_decision"
	StateCorrected        KeyState = "corrected"
	StateSkipped          KeyState = "skipped"
	StateUnresolved       KeyState = "unresolved"
	// StateAccepted 表示 key 本身是正确的（只是不在 registry 里），写入忽略列表后不再报告。
	StateAccepted KeyState = "accepted"
	// StateNotWritten 表示决定是修正，但所在文件写回失败（file_changed/write_failed），磁盘上仍是错误 key。
	StateNotWritten KeyState = "not_written"
)

// Decision 是对一个错误 key 的最终处理结果；同一次运行里该 key 的所有出现都使用同一个 Decision。
type Decision struct {
	Key         string
	State       KeyState
	Replacement string
	Confidence  float64
	// Manual 表示 Replacement 是人工输入的 key（不来自候选列表），此时 Confidence 无意义。
	Manual bool
}

// Replaces 表示该决定是否会改写文件。
func (d Decision) Replaces() bool {
	return d.State == StateAutoCorrected || d.State == StateCorrected
}
