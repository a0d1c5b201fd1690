package transport

import (
	"os"
)

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

func safeRemoveUdsFile(filename string) bool {
	if !pathExists(filename) {
		return false
	}
	if err := os.Remove(filename); err != nil {
		return false
	}
	return true
}
