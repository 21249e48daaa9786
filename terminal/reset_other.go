//go:build !linux

package terminal

func resetTerminalMode() {}
