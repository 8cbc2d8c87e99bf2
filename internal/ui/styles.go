// Package ui 提供终端输出的统一配色与图标（stderr 进度、交互会话共用）。
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// 自适应明暗终端的语义色。
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	KeyStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

const (
	IconPass = "✔"
	IconWarn = "⚠"
	IconFail = "✘"
	IconSkip = "-"
	IconInfo = "ℹ"
)

func Pass(s string) string   { return PassStyle.Render(s) }
func Warn(s string) string   { return WarnStyle.Render(s) }
func Fail(s string) string   { return FailStyle.Render(s) }
func Muted(s string) string  { return MutedStyle.Render(s) }
func Accent(s string) string { return AccentStyle.Render(s) }
func Key(s string) string    { return KeyStyle.Render(s) }

// Percent 把 0..1 的得分格式化为整数百分比（四舍五入）。
func Percent(score float64) string {
	return fmt.Sprintf("%.0f%%", score*100)
}
