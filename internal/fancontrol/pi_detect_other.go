//go:build !linux

package fancontrol

func boardModel() string { return "" }
