package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
)

// JSONFile persists the ledger as a JSON array, rewritten whole on every
// save.
type JSONFile struct {
	Path string
}

func (f JSONFile) Load() ([]ImportCode, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var codes []ImportCode
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.Path, err)
	}
	return codes, nil
}

func (f JSONFile) Save(codes []ImportCode) error {
	if codes == nil {
		codes = []ImportCode{}
	}
	data, err := json.MarshalIndent(codes, "", "  ")
	if err != nil {
		return err
	}

	lock, err := utils.NewFileLock(f.Path)
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	return utils.WriteFileAtomic(f.Path, append(data, '\n'))
}
