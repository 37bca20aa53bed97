package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pdftrans/pkg/contract"
)

// Locate 确定输入 PDF：显式路径优先；否则要求 dir 下恰好一个 *.pdf（不递归，扩展名不区分大小写）。
func Locate(dir, explicit string) (string, error) {
	if explicit != "" {
		fi, err := os.Stat(explicit)
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", contract.ErrInputNotFound, explicit)
		}
		if err != nil {
			return "", err
		}
		if fi.IsDir() {
			return "", fmt.Errorf("%w: %s is a directory", contract.ErrInvalidInput, explicit)
		}
		return explicit, nil
	}
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		found = append(found, filepath.Join(dir, e.Name()))
	}
	sort.Strings(found)
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: no *.pdf in %s", contract.ErrInputNotFound, dir)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %d pdf files in %s", contract.ErrInputAmbiguous, len(found), dir)
	}
}
