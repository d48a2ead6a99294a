package prompt

import "strings"

// 缺省占位值。空白输入不会被原样插入模板。
const (
	// DefaultUnset 通用缺省值
	DefaultUnset = "未设定"
	// DefaultGenre 题材缺省值
	DefaultGenre = "通用"
	// DefaultCharacters 角色信息缺省值
	DefaultCharacters = "暂无角色信息"
)

// Fallback 空白值回退到缺省值
func Fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
